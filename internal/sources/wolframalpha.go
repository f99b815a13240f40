package sources

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultWolframAlphaEndpoint = "https://api.wolframalpha.com/v2/query"

// WolframAlpha answers with the plaintext of every result pod.
type WolframAlpha struct {
	endpoint string
	appID    string
	http     *httpDoer
}

func (w *WolframAlpha) Fetch(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("input", query)
	params.Set("format", "plaintext")
	params.Set("output", "JSON")
	params.Set("appid", w.appID)
	body, err := w.http.get(ctx, w.endpoint+"?"+params.Encode())
	if err != nil {
		return "", err
	}
	result := gjson.GetBytes(body, "queryresult")
	if e := result.Get("error"); e.IsObject() {
		return "", apiError(e.Get("msg").String())
	}
	if !result.Get("success").Bool() {
		return "", errNoResult
	}
	var lines []string
	for _, pod := range result.Get("pods").Array() {
		text := strings.TrimSpace(pod.Get("subpods.0.plaintext").String())
		if text == "" {
			continue
		}
		lines = append(lines, pod.Get("title").String()+": "+text)
	}
	if len(lines) == 0 {
		return "", errNoResult
	}
	return strings.Join(lines, "\n"), nil
}
