package sources

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultGoogleBooksEndpoint = "https://www.googleapis.com/books/v1"

// GoogleBooks answers with the first matching volume.
type GoogleBooks struct {
	endpoint string
	apiKey   string
	http     *httpDoer
}

func (g *GoogleBooks) Fetch(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("maxResults", "1")
	if g.apiKey != "" {
		params.Set("key", g.apiKey)
	}
	body, err := g.http.get(ctx, g.endpoint+"/volumes?"+params.Encode())
	if err != nil {
		return "", err
	}
	info := gjson.GetBytes(body, "items.0.volumeInfo")
	if !info.Exists() {
		return "", errNoResult
	}
	var authors []string
	for _, a := range info.Get("authors").Array() {
		authors = append(authors, a.String())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Title: %s\n", info.Get("title").String())
	if len(authors) > 0 {
		fmt.Fprintf(&b, "Authors: %s\n", strings.Join(authors, ", "))
	}
	if published := info.Get("publishedDate").String(); published != "" {
		fmt.Fprintf(&b, "Published: %s\n", published)
	}
	if desc := info.Get("description").String(); desc != "" {
		fmt.Fprintf(&b, "Description: %s\n", desc)
	}
	return strings.TrimSpace(b.String()), nil
}
