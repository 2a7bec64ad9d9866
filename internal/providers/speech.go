package providers

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

// AzureSpeechClient は Azure Speech の REST API で音声を合成します。
type AzureSpeechClient struct {
	APIKey     string
	Region     string
	HTTPClient *http.Client
}

// NewAzureSpeechClient は AzureSpeechClient を作成します。
func NewAzureSpeechClient(apiKey, region string) *AzureSpeechClient {
	return &AzureSpeechClient{
		APIKey:     apiKey,
		Region:     region,
		HTTPClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Synthesize は原稿を音声ファイル（MP3）へ合成して outputPath に保存します。
// このAPIは音声長を返さないため常に 0 を返し、長さの計測は呼び出し側に委ねます。
func (c *AzureSpeechClient) Synthesize(ctx context.Context, text, voice, language, outputPath string) (float64, error) {
	url := fmt.Sprintf("https://%s.tts.speech.microsoft.com/cognitiveservices/v1", c.Region)

	lang := language
	if lang == "" {
		lang = "en-US"
	}
	if !strings.Contains(lang, "-") {
		lang = defaultLocale(lang)
	}

	ssml := buildSSML(lang, voice, text)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(ssml))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("Ocp-Apim-Subscription-Key", c.APIKey)
	req.Header.Set("X-Microsoft-OutputFormat", "audio-24khz-96kbitrate-mono-mp3")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("speech synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return 0, fmt.Errorf("speech synthesis returned status %d: %s", resp.StatusCode, detail)
	}

	file, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to create audio file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, resp.Body); err != nil {
		return 0, fmt.Errorf("failed to save audio file: %w", err)
	}
	return 0, nil
}

// buildSSML は SSML ドキュメントを組み立てます。原稿はエスケープして埋め込みます。
func buildSSML(lang, voice, text string) string {
	var escaped strings.Builder
	_ = xml.EscapeText(&escaped, []byte(text))
	return fmt.Sprintf(
		`<speak version="1.0" xmlns="http://www.w3.org/2001/10/synthesis" xml:lang="%s">`+
			`<voice name="%s">%s</voice></speak>`,
		lang, voice, escaped.String())
}

func defaultLocale(lang string) string {
	switch strings.ToLower(lang) {
	case "en":
		return "en-US"
	case "ja":
		return "ja-JP"
	case "es":
		return "es-ES"
	case "fr":
		return "fr-FR"
	case "de":
		return "de-DE"
	}
	return "en-US"
}
