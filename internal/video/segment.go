package video

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	// これより長い文は節境界でさらに分割します。
	maxPhraseChars = 100
	// これより短い断片は前の断片へ併合します。
	minPhraseChars = 2
)

var paragraphSplitter = regexp.MustCompile(`\n\s*\n`)

// SplitChunks はナレーション原稿を画像枚数 n と同数の断片へ分割します。
// 断片の連結は元の読み順を保ち、原稿全体を（空白を除き）網羅します。
// 段落数が n 以上であれば段落単位でほぼ均等な n グループへまとめ、
// 足りない場合は単語単位のほぼ均等分割へフォールバックします。
// 原稿が空の場合は空の断片を n 個返します。
func SplitChunks(text string, n int) []TranscriptChunk {
	if n <= 0 {
		return nil
	}

	trimmed := strings.TrimSpace(text)
	chunks := make([]TranscriptChunk, n)
	for i := range chunks {
		chunks[i].Index = i
	}
	if trimmed == "" {
		return chunks
	}

	paragraphs := splitParagraphs(trimmed)
	if len(paragraphs) >= n {
		for i, group := range distribute(paragraphs, n) {
			joined := strings.Join(group, "\n\n")
			chunks[i].Text = joined
			chunks[i].Words = countWords(joined)
		}
		return chunks
	}

	words := strings.Fields(trimmed)
	for i, group := range distribute(words, n) {
		joined := strings.Join(group, " ")
		chunks[i].Text = joined
		chunks[i].Words = len(group)
	}
	return chunks
}

// SplitPhrases はナレーション原稿を字幕用のフレーズへ分割します。
// まず文末記号（. ! ?）で文に分け、閾値より長い文は節境界
// （カンマ・セミコロン・等位接続詞）でさらに分割します。
// 極端に短い断片は前の断片へ併合されます。出力順は原稿の読み順のままです。
func SplitPhrases(text string) []string {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}

	var phrases []string
	for _, sentence := range splitSentences(trimmed) {
		if len(sentence) <= maxPhraseChars {
			phrases = appendPhrase(phrases, sentence)
			continue
		}
		for _, clause := range splitClauses(sentence) {
			phrases = appendPhrase(phrases, clause)
		}
	}
	return phrases
}

func appendPhrase(phrases []string, phrase string) []string {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" || !containsLetterOrDigit(phrase) {
		return phrases
	}
	if len(phrase) < minPhraseChars && len(phrases) > 0 {
		phrases[len(phrases)-1] += " " + phrase
		return phrases
	}
	return append(phrases, phrase)
}

func splitParagraphs(text string) []string {
	var paragraphs []string
	for _, p := range paragraphSplitter.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			paragraphs = append(paragraphs, p)
		}
	}
	return paragraphs
}

// distribute は items をほぼ均等な n グループへ順序を保って分配します。
func distribute(items []string, n int) [][]string {
	groups := make([][]string, n)
	base := len(items) / n
	rem := len(items) % n
	idx := 0
	for i := 0; i < n; i++ {
		size := base
		if i < rem {
			size++
		}
		groups[i] = items[idx : idx+size]
		idx += size
	}
	return groups
}

func splitSentences(text string) []string {
	var sentences []string
	var current strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		current.WriteRune(runes[i])
		if runes[i] == '.' || runes[i] == '!' || runes[i] == '?' {
			// 連続する終端記号（"..." や "?!"）は1つの文末として扱う
			for i+1 < len(runes) && (runes[i+1] == '.' || runes[i+1] == '!' || runes[i+1] == '?') {
				i++
				current.WriteRune(runes[i])
			}
			sentences = append(sentences, strings.TrimSpace(current.String()))
			current.Reset()
		}
	}
	if rest := strings.TrimSpace(current.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

var conjunctionSplitter = regexp.MustCompile(`\s+(?:and|but|or|nor|so|yet)\s+`)

func splitClauses(sentence string) []string {
	var pieces []string
	start := 0
	for i, r := range sentence {
		if r == ',' || r == ';' {
			pieces = append(pieces, sentence[start:i+1])
			start = i + 1
		}
	}
	pieces = append(pieces, sentence[start:])

	// カンマが無い長文は等位接続詞の前で切る
	if len(pieces) == 1 && len(sentence) > maxPhraseChars {
		if locs := conjunctionSplitter.FindAllStringIndex(sentence, -1); len(locs) > 0 {
			pieces = pieces[:0]
			prev := 0
			for _, loc := range locs {
				pieces = append(pieces, sentence[prev:loc[0]])
				prev = loc[0]
			}
			pieces = append(pieces, sentence[prev:])
		}
	}

	// 閾値を超えない範囲で隣接する節を貪欲にまとめ直す
	var merged []string
	current := ""
	for _, piece := range pieces {
		piece = strings.TrimSpace(piece)
		if piece == "" {
			continue
		}
		if current == "" {
			current = piece
			continue
		}
		if len(current)+1+len(piece) <= maxPhraseChars {
			current += " " + piece
		} else {
			merged = append(merged, current)
			current = piece
		}
	}
	if current != "" {
		merged = append(merged, current)
	}
	return merged
}

func countWords(text string) int {
	return len(strings.Fields(text))
}

func containsLetterOrDigit(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
