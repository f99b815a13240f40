package sources

import (
	"context"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

const defaultWikidataEndpoint = "https://www.wikidata.org/w/api.php"

// Wikidata answers with "label: description" of the entity linked to the
// English Wikipedia page titled by the query.
type Wikidata struct {
	endpoint string
	http     *httpDoer
}

func (w *Wikidata) Fetch(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("action", "wbgetentities")
	params.Set("sites", "enwiki")
	params.Set("titles", strings.TrimSpace(query))
	params.Set("props", "labels|descriptions")
	params.Set("languages", "en")
	params.Set("format", "json")
	body, err := w.http.get(ctx, w.endpoint+"?"+params.Encode())
	if err != nil {
		return "", err
	}
	if msg := gjson.GetBytes(body, "error.info").String(); msg != "" {
		return "", apiError(msg)
	}
	var answer string
	gjson.GetBytes(body, "entities").ForEach(func(_, entity gjson.Result) bool {
		if entity.Get("missing").Exists() {
			return true
		}
		label := entity.Get("labels.en.value").String()
		if label == "" {
			return true
		}
		answer = label
		if desc := entity.Get("descriptions.en.value").String(); desc != "" {
			answer += ": " + desc
		}
		return false
	})
	if answer == "" {
		return "", errNoResult
	}
	return answer, nil
}
