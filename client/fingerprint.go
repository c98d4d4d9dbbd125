package client

import (
	"bufio"
	"math/rand"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// FingerprintManager handles User-Agent and header randomization.
type FingerprintManager struct {
	userAgents []string
	mu         sync.Mutex
	random     *rand.Rand
}

// NewFingerprintManager creates a new FingerprintManager.
func NewFingerprintManager() *FingerprintManager {
	return &FingerprintManager{
		userAgents: []string{defaultUserAgent},
		random:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// LoadUserAgents loads user agents from a file (one per line).
func (fm *FingerprintManager) LoadUserAgents(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var loaded []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			loaded = append(loaded, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	if len(loaded) > 0 {
		fm.mu.Lock()
		fm.userAgents = loaded
		fm.mu.Unlock()
		log.Info().Int("count", len(loaded)).Str("path", path).Msg("loaded user agents")
	}

	return nil
}

// GetRandomUserAgent returns a random User-Agent string.
func (fm *FingerprintManager) GetRandomUserAgent() string {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	return fm.userAgents[fm.random.Intn(len(fm.userAgents))]
}

// GetRandomHeaders returns common browser headers with randomized values.
func (fm *FingerprintManager) GetRandomHeaders() map[string]string {
	fm.mu.Lock()
	defer fm.mu.Unlock()

	headers := make(map[string]string)

	languages := []string{"zh-CN,zh;q=0.9", "zh-CN,zh;q=0.9,en;q=0.8", "zh-CN,zh-TW;q=0.9,en-US;q=0.8,en;q=0.7"}
	headers["Accept-Language"] = languages[fm.random.Intn(len(languages))]

	accepts := []string{
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,image/apng,*/*;q=0.8,application/signed-exchange;v=b3;q=0.7",
		"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
	}
	headers["Accept"] = accepts[fm.random.Intn(len(accepts))]

	headers["Upgrade-Insecure-Requests"] = "1"
	headers["Sec-Fetch-Dest"] = "document"
	headers["Sec-Fetch-Mode"] = "navigate"
	headers["Sec-Fetch-Site"] = "none"
	headers["Sec-Fetch-User"] = "?1"

	return headers
}
