// Package miamidade extracts Miami-Dade County property records:
// recent sales from the Property Appraiser site and foreclosure
// filings from the Clerk of Courts listing pages.
package miamidade

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"regexp"
	"time"

	"propwatch-backend/lib/htmlutil"
	"propwatch-backend/lib/sources"
	"propwatch-backend/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
)

const defaultBaseURL = "https://www.miamidade.gov"

func init() {
	sources.Register("miami_dade", func(config sources.Config) (sources.Source, error) {
		return NewSource(config)
	})
}

type Source struct {
	baseURL string
	http    *resty.Client
}

func NewSource(config sources.Config) (*Source, error) {
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetTimeout(config.Timeout(time.Second * 30))

	telemetry.InstrumentResty(client, "sources/miamidade/http")

	return &Source{
		baseURL: baseURL,
		http:    client,
	}, nil
}

func (s *Source) Name() string {
	return "miami_dade"
}

func (s *Source) Fetch(ctx context.Context, since time.Time) ([]sources.RawRecord, error) {
	sales, err := s.fetchRecentSales(ctx)
	if err != nil {
		return nil, err
	}
	foreclosures, err := s.fetchForeclosures(ctx)
	if err != nil {
		return nil, err
	}
	return append(sales, foreclosures...), nil
}

func (s *Source) fetchRecentSales(ctx context.Context) ([]sources.RawRecord, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get("/pa/property_search.asp")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("recent sales page returned %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}

	var records []sources.RawRecord
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		for _, cells := range htmlutil.TableRows(table) {
			// address | folio | price | date
			if len(cells) < 4 || len(cells[0]) < 5 {
				continue
			}
			records = append(records, sources.RawRecord{
				Fields: map[string]string{
					"address":     cells[0],
					"folio":       cells[1],
					"price":       cells[2],
					"sale_date":   cells[3],
					"record_type": "sale",
				},
				URL: s.rowURL(table, res.Request.URL),
			})
		}
	})
	return records, nil
}

var (
	addressPattern = regexp.MustCompile(`(?i)(\d+\s+[A-Za-z\s]+(?:St|Ave|Blvd|Dr|Rd|Ct|Way|Ln|Pl)[^,]*)`)
	casePattern    = regexp.MustCompile(`(\d{4}-\d+-\w+|\d{2}-\d+)`)
	pricePattern   = regexp.MustCompile(`\$[\d,]+`)
	datePattern    = regexp.MustCompile(`\d{1,2}/\d{1,2}/\d{4}`)
)

func (s *Source) fetchForeclosures(ctx context.Context) ([]sources.RawRecord, error) {
	res, err := s.http.R().
		SetContext(ctx).
		Get("/clerk/foreclosure-sales.asp")
	if err != nil {
		return nil, err
	}
	if res.IsError() {
		return nil, fmt.Errorf("foreclosure page returned %s", res.Status())
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(res.Body()))
	if err != nil {
		return nil, err
	}

	var records []sources.RawRecord
	doc.Find("table tr, .foreclosure-item, .listing-item, article").Each(func(_ int, item *goquery.Selection) {
		text := htmlutil.CleanText(item.Text())
		if len(text) < 20 {
			return
		}

		address := addressPattern.FindString(text)
		if address == "" {
			return
		}

		// the clerk feed identifies filings by case number; it fills
		// the same identifier column the appraiser's folio does
		fields := map[string]string{
			"address":     address,
			"folio":       casePattern.FindString(text),
			"price":       pricePattern.FindString(text),
			"sale_date":   datePattern.FindString(text),
			"record_type": "foreclosure",
		}
		records = append(records, sources.RawRecord{
			Fields: fields,
			URL:    s.itemURL(item, res.Request.URL),
		})
	})
	return records, nil
}

func (s *Source) rowURL(sel *goquery.Selection, pageURL string) string {
	return s.itemURL(sel, pageURL)
}

func (s *Source) itemURL(sel *goquery.Selection, pageURL string) string {
	anchors := htmlutil.GetAnchors(sel)
	if len(anchors) == 0 {
		return pageURL
	}
	href := anchors[0].Href
	if len(href) >= 4 && href[:4] == "http" {
		return href
	}
	return s.baseURL + "/" + href
}
