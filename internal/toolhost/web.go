package toolhost

import (
	"context"
	"io"
	"net/http"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"github.com/opencode-ai/agentcore/internal/policy"
)

// webFetchHandler implements web.fetch: downloads a URL and converts HTML
// to markdown for token-efficient consumption by the LLM.
type webFetchHandler struct {
	client *http.Client
}

func newWebFetchHandler() *webFetchHandler {
	return &webFetchHandler{client: &http.Client{Timeout: 30 * time.Second}}
}

func (w *webFetchHandler) Name() string { return "web.fetch" }

func (w *webFetchHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil // read-only
}

func (w *webFetchHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		URL string `json:"url"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, in.URL, nil)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 2<<20))
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}

	content, convErr := md.NewConverter("", true, nil).ConvertString(string(body))
	if convErr != nil {
		content = string(body)
	}
	return &Result{Success: resp.StatusCode < 400, Output: content}, nil
}

// webSearchHandler implements web.search. There is no vendored search API
// in the example corpus, so this scrapes a configured search results page
// and extracts result links and snippets with goquery, in the same spirit
// as web.fetch's markdown conversion.
type webSearchHandler struct {
	client      *http.Client
	searchURLFn func(query string) string
}

func newWebSearchHandler() *webSearchHandler {
	return &webSearchHandler{
		client: &http.Client{Timeout: 15 * time.Second},
		searchURLFn: func(query string) string {
			return "https://duckduckgo.com/html/?q=" + query
		},
	}
}

func (w *webSearchHandler) Name() string { return "web.search" }

func (w *webSearchHandler) Propose(ctx context.Context, call Call, pe *policy.Engine) (bool, string, error) {
	return true, "", nil
}

func (w *webSearchHandler) Execute(ctx context.Context, call Call, toolCtx *Context) (*Result, error) {
	var in struct {
		Query string `json:"query"`
	}
	if err := marshalArgs(call.Args, &in); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.searchURLFn(in.Query), nil)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return &Result{Success: false, Output: err.Error()}, nil
	}

	var hits []SearchHit
	doc.Find("a.result__a").Each(func(i int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		hits = append(hits, SearchHit{URL: href, Snippet: s.Text()})
	})

	return &Result{Success: true, Output: SearchOutput{Results: hits}}, nil
}
