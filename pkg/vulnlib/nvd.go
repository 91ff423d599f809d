package vulnlib

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/tidwall/gjson"
)

// NVD limits lastModified ranges to 120 days
const maxModifiedRange = 120 * 24 * time.Hour

// Query returns every CVE the NVD attaches to the identifier.
func (c *Client) Query(ctx context.Context, cpe string) ([]Record, error) {
	records := []Record{}

	for start := 0; ; {
		params := url.Values{}
		params.Set("cpeName", cpe)
		params.Set("resultsPerPage", strconv.Itoa(c.PageSize))
		params.Set("startIndex", strconv.Itoa(start))

		body, err := c.get(ctx, cpe, params)
		if err != nil {
			return nil, err
		}

		page := gjson.Parse(body)
		page.Get("vulnerabilities.#.cve").ForEach(func(_, cve gjson.Result) bool {
			if r, ok := parseCVE(cve); ok {
				records = append(records, r)
			}
			return true
		})

		total := int(page.Get("totalResults").Int())
		got := int(page.Get("resultsPerPage").Int())
		start += got
		if got == 0 || start >= total {
			break
		}
	}

	return records, nil
}

// Updated reports whether NVD modified any CVE of the identifier after since.
func (c *Client) Updated(ctx context.Context, cpe string, since time.Time) (bool, error) {
	now := time.Now()
	if since.IsZero() || now.Sub(since) > maxModifiedRange {
		return true, nil
	}

	params := url.Values{}
	params.Set("cpeName", cpe)
	params.Set("lastModStartDate", since.UTC().Format("2006-01-02T15:04:05.000-07:00"))
	params.Set("lastModEndDate", now.UTC().Format("2006-01-02T15:04:05.000-07:00"))
	params.Set("resultsPerPage", "1")

	body, err := c.get(ctx, cpe, params)
	if err != nil {
		return false, err
	}

	return gjson.Get(body, "totalResults").Int() > 0, nil
}

func (c *Client) get(ctx context.Context, cpe string, params url.Values) (string, error) {
	u := c.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", &QueryError{Kind: KindOther, CPE: cpe, Err: err}
	}
	if c.APIKey != "" {
		req.Header.Set("apiKey", c.APIKey)
	}

	res, err := c.Cli.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", &QueryError{Kind: KindOther, CPE: cpe, Err: ctx.Err()}
		}
		return "", &QueryError{Kind: KindUnavailable, CPE: cpe, Err: err}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return "", &QueryError{Kind: KindUnavailable, CPE: cpe, Err: err}
	}

	if res.StatusCode != http.StatusOK {
		return "", &QueryError{
			Kind:       classifyStatus(res.StatusCode),
			StatusCode: res.StatusCode,
			CPE:        cpe,
			Err:        fmt.Errorf("%s", res.Header.Get("message")),
		}
	}

	if !gjson.ValidBytes(data) {
		return "", &QueryError{Kind: KindOther, CPE: cpe, Err: fmt.Errorf("invalid json response")}
	}

	return string(data), nil
}

func parseCVE(cve gjson.Result) (Record, bool) {
	id := cve.Get("id").String()
	if id == "" {
		return Record{}, false
	}

	desc := cve.Get(`descriptions.#(lang=="en").value`).String()
	if desc == "" {
		desc = cve.Get("descriptions.0.value").String()
	}

	return Record{
		ID:          id,
		Description: desc,
		SourceURL:   fmt.Sprintf(mitreURL, id),
		Published:   cve.Get("published").String(),
	}, true
}
