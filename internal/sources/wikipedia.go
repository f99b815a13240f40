package sources

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultWikipediaEndpoint = "https://en.wikipedia.org/api/rest_v1"

// Wikipedia answers with the summary extract of the page titled by the query.
type Wikipedia struct {
	endpoint string
	http     *httpDoer
}

func (w *Wikipedia) Fetch(ctx context.Context, query string) (string, error) {
	title := strings.ReplaceAll(strings.TrimSpace(query), " ", "_")
	body, err := w.http.get(ctx, w.endpoint+"/page/summary/"+url.PathEscape(title))
	if err != nil {
		return "", err
	}
	extract := strings.TrimSpace(gjson.GetBytes(body, "extract").String())
	if extract == "" {
		return "", errNoResult
	}
	return extract, nil
}
