package source

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"abstractrag/internal/domain"
	"golang.org/x/sync/errgroup"
)

const defaultEutilsURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

// PubMedSource fetches abstracts by PMID from the NCBI E-utilities efetch API.
type PubMedSource struct {
	ids         []string
	baseURL     string
	email       string
	tool        string
	concurrency int
	client      *http.Client
	logger      *slog.Logger

	// Progress, when set, is called after each PMID is processed.
	Progress func(done, total int)
}

type PubMedOptions struct {
	IDs         []string
	BaseURL     string
	Email       string
	Tool        string
	Concurrency int
	Timeout     time.Duration
}

func NewPubMedSource(opts PubMedOptions, logger *slog.Logger) *PubMedSource {
	if opts.BaseURL == "" {
		opts.BaseURL = defaultEutilsURL
	}
	if opts.Concurrency <= 0 {
		// NCBI allows 3 requests per second without an API key.
		opts.Concurrency = 3
	}
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Tool == "" {
		opts.Tool = "abstractrag"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PubMedSource{
		ids:         opts.IDs,
		baseURL:     strings.TrimRight(opts.BaseURL, "/"),
		email:       opts.Email,
		tool:        opts.Tool,
		concurrency: opts.Concurrency,
		client:      &http.Client{Timeout: opts.Timeout},
		logger:      logger,
	}
}

func (s *PubMedSource) Name() string {
	return "pubmed"
}

// Load fetches every configured PMID. PMIDs that fail are logged and
// skipped; Load fails only if nothing could be fetched or ctx is done.
func (s *PubMedSource) Load(ctx context.Context) ([]domain.RawDocument, error) {
	if len(s.ids) == 0 {
		return nil, fmt.Errorf("%w: no PubMed ids configured", domain.ErrInvalidInput)
	}

	results := make([]*domain.RawDocument, len(s.ids))
	var done int64
	var progressMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, id := range s.ids {
		i, id := i, id
		g.Go(func() error {
			doc, err := s.fetch(gctx, id)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				s.logger.Warn("pubmed fetch failed", "pmid", id, "error", err)
			} else {
				results[i] = &doc
				s.logger.Debug("pubmed abstract fetched", "pmid", id)
			}

			n := atomic.AddInt64(&done, 1)
			if s.Progress != nil {
				progressMu.Lock()
				s.Progress(int(n), len(s.ids))
				progressMu.Unlock()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	docs := make([]domain.RawDocument, 0, len(results))
	for _, r := range results {
		if r != nil {
			docs = append(docs, *r)
		}
	}
	if len(docs) == 0 {
		return nil, errors.New("no abstracts could be fetched from PubMed")
	}
	return docs, nil
}

func (s *PubMedSource) fetch(ctx context.Context, pmid string) (domain.RawDocument, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", pmid)
	q.Set("rettype", "abstract")
	q.Set("retmode", "xml")
	q.Set("tool", s.tool)
	if s.email != "" {
		q.Set("email", s.email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/efetch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.RawDocument{}, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.RawDocument{}, fmt.Errorf("efetch returned status %d", resp.StatusCode)
	}

	title, abstract, err := ParseEfetchXML(body)
	if err != nil {
		return domain.RawDocument{}, err
	}
	if abstract == "" {
		return domain.RawDocument{}, fmt.Errorf("article %s has no abstract", pmid)
	}

	return domain.RawDocument{
		Title:    title,
		SourceID: pmid,
		Text:     abstract,
	}, nil
}

// ParseEfetchXML extracts the first ArticleTitle and the concatenation of all
// AbstractText sections from an efetch XML payload. Inline markup inside
// those elements is flattened to text. A missing title becomes "N/A".
func ParseEfetchXML(data []byte) (title, abstract string, err error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var (
		inTitle, inAbstract int
		titleBuf            strings.Builder
		partBuf             strings.Builder
		parts               []string
		titleDone           bool
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", "", fmt.Errorf("failed to parse efetch xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "ArticleTitle":
				if !titleDone {
					inTitle++
				}
			case "AbstractText":
				inAbstract++
				partBuf.Reset()
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "ArticleTitle":
				if inTitle > 0 {
					inTitle--
					titleDone = true
				}
			case "AbstractText":
				if inAbstract > 0 {
					inAbstract--
					if p := strings.TrimSpace(partBuf.String()); p != "" {
						parts = append(parts, p)
					}
				}
			}
		case xml.CharData:
			if inTitle > 0 {
				titleBuf.Write(t)
			}
			if inAbstract > 0 {
				partBuf.Write(t)
			}
		}
	}

	title = strings.TrimSpace(titleBuf.String())
	if title == "" {
		title = "N/A"
	}
	return title, strings.Join(parts, " "), nil
}
