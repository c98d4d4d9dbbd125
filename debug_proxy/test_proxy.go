package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"flashbuy-bot/client"
)

func main() {
	proxyFile := flag.String("proxies", "proxies.txt", "file with one socks5:// proxy per line")
	endpoint := flag.String("endpoint", "https://a.jd.com//ajax/queryServerData.html", "remote time endpoint")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	fmt.Println("Starting Proxy Connection Test (time endpoint through each proxy)...")

	pm := client.NewProxyManager()
	if err := pm.LoadProxies(*proxyFile); err != nil {
		log.Fatal().Err(err).Str("path", *proxyFile).Msg("failed to load proxies")
	}
	if !pm.HasProxies() {
		fmt.Println("No proxies configured, probing direct connection only.")
	}

	probe := func(label, proxyURL string) {
		c, err := client.NewLowLatencyClient(client.ClientOptions{ProxyURL: proxyURL, Timeout: 10 * time.Second})
		if err != nil {
			fmt.Printf("❌ %s: %v\n", label, err)
			return
		}
		defer c.CloseIdleConnections()

		sync := client.NewClockSynchronizer(client.NewHTTPTimeSource(c, *endpoint, ""), client.RealClock(), log.Logger.Level(zerolog.WarnLevel))
		start := time.Now()
		offset, err := sync.MeasureOffset(context.Background())
		if err != nil {
			fmt.Printf("❌ %s: %v\n", label, err)
			return
		}
		fmt.Printf("✅ %s | offset %dms | rtt %s | took %v\n", label, int64(offset), sync.LastSample().RTT, time.Since(start))
	}

	probe("DIRECT", "")
	for i := 0; i < pm.Count(); i++ {
		p := pm.GetNext()
		probe(client.MaskProxy(p), p)
	}
}
