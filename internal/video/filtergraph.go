package video

import "strings"

// FilterArg はフィルタの引数1つを表します。Key が空の場合は値のみを出力します。
type FilterArg struct {
	Key   string
	Value string
}

// FilterNode はフィルタグラフの1ノード（入力ラベル、フィルタ連結、出力ラベル）です。
// Filters にはカンマ連結されるフィルタを順に並べます。
type FilterNode struct {
	Inputs  []string
	Filters []Filter
	Outputs []string
}

// Filter は名前付きフィルタ1つです。
type Filter struct {
	Name string
	Args []FilterArg
}

// FilterGraph はコンポジタのフィルタグラフをノードと辺（ラベル）で表す
// 型付きビルダーです。タイミング計算はこの構造の上で行い、コンポジタ固有の
// 引数文字列への直列化は境界の String でのみ行います。
type FilterGraph struct {
	nodes []FilterNode
}

// Add はノードを末尾に追加します。
func (g *FilterGraph) Add(node FilterNode) {
	g.nodes = append(g.nodes, node)
}

// String はグラフを -filter_complex の引数構文へ直列化します。
func (g *FilterGraph) String() string {
	var b strings.Builder
	for i, node := range g.nodes {
		if i > 0 {
			b.WriteString(";")
		}
		for _, in := range node.Inputs {
			b.WriteString("[")
			b.WriteString(in)
			b.WriteString("]")
		}
		for j, f := range node.Filters {
			if j > 0 {
				b.WriteString(",")
			}
			b.WriteString(f.Name)
			if len(f.Args) > 0 {
				b.WriteString("=")
				for k, arg := range f.Args {
					if k > 0 {
						b.WriteString(":")
					}
					if arg.Key != "" {
						b.WriteString(arg.Key)
						b.WriteString("=")
					}
					b.WriteString(arg.Value)
				}
			}
		}
		for _, out := range node.Outputs {
			b.WriteString("[")
			b.WriteString(out)
			b.WriteString("]")
		}
	}
	return b.String()
}

// escapeFilterPath はフィルタ引数に埋め込むパスをエスケープします。
var filterPathEscaper = strings.NewReplacer(
	`\`, `\\`,
	`:`, `\:`,
	`'`, `\'`,
)

func escapeFilterPath(path string) string {
	return "'" + filterPathEscaper.Replace(path) + "'"
}
