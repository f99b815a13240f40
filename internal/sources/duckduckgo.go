package sources

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultDuckDuckGoEndpoint = "https://api.duckduckgo.com"

// DuckDuckGo answers from the Instant Answer API.
type DuckDuckGo struct {
	endpoint string
	http     *httpDoer
}

func (d *DuckDuckGo) Fetch(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("format", "json")
	params.Set("no_html", "1")
	params.Set("skip_disambig", "1")
	body, err := d.http.get(ctx, d.endpoint+"/?"+params.Encode())
	if err != nil {
		return "", err
	}
	if text := strings.TrimSpace(gjson.GetBytes(body, "AbstractText").String()); text != "" {
		return text, nil
	}
	if text := strings.TrimSpace(gjson.GetBytes(body, "RelatedTopics.0.Text").String()); text != "" {
		return text, nil
	}
	return "", errNoResult
}
