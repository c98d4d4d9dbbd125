package client

import (
	"bufio"
	"fmt"
	"math/rand"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// ProxyManager handles loading and rotating proxies.
type ProxyManager struct {
	proxies      []string
	currentIndex int
	mu           sync.Mutex
	random       *rand.Rand

	// Sticky session: reuses the same proxy URL until explicitly rotated
	stickyURL string
}

// NewProxyManager creates a new ProxyManager.
func NewProxyManager() *ProxyManager {
	return &ProxyManager{
		proxies: []string{},
		random:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add appends a single proxy URL.
func (pm *ProxyManager) Add(proxyURL string) error {
	if _, err := url.Parse(proxyURL); err != nil {
		return fmt.Errorf("invalid proxy url: %w", err)
	}
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.proxies = append(pm.proxies, proxyURL)
	return nil
}

// LoadProxies loads proxies from a file (one per line).
// Format: socks5://ip:port or socks5://user:pass@ip:port
func (pm *ProxyManager) LoadProxies(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	var loaded []string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := url.Parse(line); err == nil {
			loaded = append(loaded, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.proxies = loaded
	pm.random.Shuffle(len(pm.proxies), func(i, j int) {
		pm.proxies[i], pm.proxies[j] = pm.proxies[j], pm.proxies[i]
	})

	log.Info().Int("count", len(pm.proxies)).Str("path", path).Msg("loaded proxies")
	return nil
}

// GetNext returns the next proxy round-robin, or "" when none are loaded.
func (pm *ProxyManager) GetNext() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if len(pm.proxies) == 0 {
		return ""
	}

	proxy := pm.proxies[pm.currentIndex]
	pm.currentIndex = (pm.currentIndex + 1) % len(pm.proxies)
	return proxy
}

// HasProxies returns true if any proxy is available.
func (pm *ProxyManager) HasProxies() bool {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies) > 0
}

// Count returns the number of loaded proxies.
func (pm *ProxyManager) Count() int {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	return len(pm.proxies)
}

// GetCurrentProxyInfo returns a human-readable label for the sticky proxy
// with credentials masked.
func (pm *ProxyManager) GetCurrentProxyInfo() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	return MaskProxy(pm.stickyURL)
}

// MaskProxy labels a proxy URL without its credentials.
func MaskProxy(proxyURL string) string {
	if proxyURL == "" {
		return "DIRECT (no proxy)"
	}
	if u, err := url.Parse(proxyURL); err == nil {
		return fmt.Sprintf("Proxy (%s://%s)", u.Scheme, u.Host)
	}
	return "Proxy (unparseable)"
}

// GetSticky returns the same proxy URL until RotateSticky() is called.
// The clock sample, the browser and the item page must share one exit IP.
func (pm *ProxyManager) GetSticky() string {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	if pm.stickyURL != "" {
		return pm.stickyURL
	}
	if len(pm.proxies) > 0 {
		pm.stickyURL = pm.proxies[pm.currentIndex]
		pm.currentIndex = (pm.currentIndex + 1) % len(pm.proxies)
	}
	return pm.stickyURL
}

// RotateSticky clears the sticky proxy so the next GetSticky() call picks a new one.
func (pm *ProxyManager) RotateSticky() {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.stickyURL = ""
}
