// Package discovery crawls game-archive listing pages and emits the ids
// of finished games worth downloading.
package discovery

import (
	"fmt"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Config holds discovery worker configuration
type Config struct {
	ArchiveURLs  []string      // Archive listing pages to scrape
	RequestDelay time.Duration // Delay between HTTP requests to be polite
	MaxPages     int           // Maximum pagination depth per archive (0 = first page only)
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		ArchiveURLs: []string{
			"https://online-go.com/observe-games",
		},
		RequestDelay: 500 * time.Millisecond,
		MaxPages:     10,
	}
}

// Worker discovers game IDs from archive listing pages
type Worker struct {
	config   Config
	client   *http.Client
	knownIDs map[string]bool
	knownMu  sync.RWMutex
	gameIDRe *regexp.Regexp
	pageRe   *regexp.Regexp
}

// NewWorker creates a new discovery worker
func NewWorker(config Config, existingIDs map[string]bool) *Worker {
	if existingIDs == nil {
		existingIDs = make(map[string]bool)
	}

	return &Worker{
		config: config,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
		knownIDs: existingIDs,
		gameIDRe: regexp.MustCompile(`/game(?:/view)?/(\d+)`),
		pageRe:   regexp.MustCompile(`[?&]page=(\d+)`),
	}
}

// Discover starts the discovery process and sends new game IDs to the channel
func (w *Worker) Discover(gameIDChan chan<- string) error {
	log.Println("[Discovery] Starting archive crawl...")

	totalNewGames := 0

	for _, archiveURL := range w.config.ArchiveURLs {
		log.Printf("[Discovery] Scraping archive: %s", archiveURL)

		newGames := 0
		pageURL := archiveURL
		for page := 1; ; page++ {
			gameIDs, nextPage, err := w.scrapePage(pageURL)
			if err != nil {
				log.Printf("[Discovery] Error scraping %s: %v", pageURL, err)
				break
			}

			for _, gameID := range gameIDs {
				w.knownMu.RLock()
				known := w.knownIDs[gameID]
				w.knownMu.RUnlock()

				if !known {
					w.knownMu.Lock()
					w.knownIDs[gameID] = true
					w.knownMu.Unlock()

					gameIDChan <- gameID
					newGames++
				}
			}

			if nextPage == "" || page >= w.config.MaxPages {
				break
			}
			pageURL = nextPage

			// Rate limiting
			time.Sleep(w.config.RequestDelay)
		}

		log.Printf("[Discovery] Finished %s. Found %d new games", archiveURL, newGames)
		totalNewGames += newGames
	}

	log.Printf("[Discovery] All archives complete. Total new games: %d", totalNewGames)
	return nil
}

// scrapePage fetches one listing page and returns the game ids it links
// to plus the next pagination URL, if any.
func (w *Worker) scrapePage(pageURL string) ([]string, string, error) {
	req, err := http.NewRequest("GET", pageURL, nil)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("User-Agent", "SenteScraper/1.0 (training-data-collector)")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, "", fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", err
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, "", err
	}

	var gameIDs []string
	seen := make(map[string]bool)

	doc.Find("a[href*='/game/']").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}

		matches := w.gameIDRe.FindStringSubmatch(href)
		if len(matches) >= 2 {
			gameID := matches[1]
			if !seen[gameID] {
				seen[gameID] = true
				gameIDs = append(gameIDs, gameID)
			}
		}
	})

	// Highest-numbered page link on the page that is past the current
	// one is the next page.
	currentPage := 1
	if matches := w.pageRe.FindStringSubmatch(pageURL); len(matches) >= 2 {
		fmt.Sscanf(matches[1], "%d", &currentPage)
	}

	nextPage := ""
	doc.Find("a[href*='page=']").Each(func(i int, s *goquery.Selection) {
		href, exists := s.Attr("href")
		if !exists {
			return
		}
		matches := w.pageRe.FindStringSubmatch(href)
		if len(matches) < 2 {
			return
		}
		var page int
		fmt.Sscanf(matches[1], "%d", &page)
		if page == currentPage+1 {
			if ref, err := url.Parse(href); err == nil {
				nextPage = base.ResolveReference(ref).String()
			}
		}
	})

	return gameIDs, nextPage, nil
}

// AddKnownID adds a game ID to the known set (used for deduplication)
func (w *Worker) AddKnownID(gameID string) {
	w.knownMu.Lock()
	defer w.knownMu.Unlock()
	w.knownIDs[gameID] = true
}
