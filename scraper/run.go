package scraper

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"apt_scrooper/httputil"
	"apt_scrooper/metrics"
	"apt_scrooper/models"
)

// Scrape visits urls one at a time. Per-property problems are collected in
// the result; the returned error is set only when the provider could not
// start at all.
func Scrape(ctx context.Context, p Provider, urls []string, queue *httputil.HostQueue, log *logrus.Logger) (*models.ScrapeResult, error) {
	result := &models.ScrapeResult{
		Provider:  p.Slug(),
		Buildings: []models.ScrapedBuilding{},
		Errors:    []string{},
		ScrapedAt: time.Now(),
	}
	if len(urls) == 0 {
		return result, nil
	}

	if err := p.Start(ctx); err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", p.Slug(), err))
		return result, err
	}
	defer p.Close()

	for i, u := range urls {
		if err := queue.Next(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("stopped before %s: %v", u, err))
			break
		}

		start := time.Now()
		building, errs := scrapeSafely(ctx, p, u)
		metrics.ScrapeDuration.WithLabelValues(p.Slug()).Observe(time.Since(start).Seconds())

		result.Errors = append(result.Errors, errs...)
		if building != nil {
			result.Buildings = append(result.Buildings, *building)
		}

		log.WithFields(logrus.Fields{
			"provider": p.Slug(),
			"progress": fmt.Sprintf("%d/%d", i+1, len(urls)),
			"url":      u,
			"errors":   len(errs),
		}).Debug("Property done")
	}

	return result, nil
}

// scrapeSafely is a second line of defense for providers that don't recover
// on their own.
func scrapeSafely(ctx context.Context, p Provider, u string) (b *models.ScrapedBuilding, errs []string) {
	defer func() {
		if r := recover(); r != nil {
			b = nil
			errs = []string{fmt.Sprintf("%s: panic: %v", u, r)}
		}
	}()
	return p.ScrapeOne(ctx, u)
}
