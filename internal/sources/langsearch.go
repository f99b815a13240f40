package sources

import (
	"context"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultLangSearchEndpoint = "https://api.langsearch.com/v1/web-search"

// LangSearch answers with web results, three lines each: name, URL and snippet.
type LangSearch struct {
	endpoint string
	http     *httpDoer
}

type langSearchRequest struct {
	Query     string `json:"query"`
	Freshness string `json:"freshness"`
	Summary   bool   `json:"summary"`
	Count     int    `json:"count"`
}

func (l *LangSearch) Fetch(ctx context.Context, query string) (string, error) {
	body, err := l.http.postJSON(ctx, l.endpoint, langSearchRequest{
		Query:     query,
		Freshness: "oneYear",
		Summary:   true,
		Count:     5,
	})
	if err != nil {
		return "", err
	}
	if code := gjson.GetBytes(body, "code").Int(); code != 0 && code != 200 {
		return "", apiError(gjson.GetBytes(body, "msg").String())
	}
	var b strings.Builder
	for _, page := range gjson.GetBytes(body, "data.webPages.value").Array() {
		snippet := page.Get("snippet").String()
		if snippet == "" {
			snippet = page.Get("summary").String()
		}
		b.WriteString("• " + page.Get("name").String() + "\n")
		b.WriteString("  " + page.Get("url").String() + "\n")
		b.WriteString("  " + strings.Join(strings.Fields(snippet), " ") + "\n")
	}
	if b.Len() == 0 {
		return "", errNoResult
	}
	return strings.TrimRight(b.String(), "\n"), nil
}
