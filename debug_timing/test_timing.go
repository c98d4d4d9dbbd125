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
	poll := flag.Duration("poll", 10*time.Millisecond, "scheduler poll interval")
	spin := flag.Duration("spin", 0, "busy-check window before the target")
	endpoint := flag.String("endpoint", "https://a.jd.com//ajax/queryServerData.html", "remote time endpoint")
	runs := flag.Int("n", 3, "number of wake-ups")
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	fmt.Println("Starting Precision Timing Verification...")

	ctx := context.Background()
	clock := client.RealClock()

	hc, err := client.NewLowLatencyClient(client.ClientOptions{})
	if err != nil {
		log.Fatal().Err(err).Msg("client")
	}
	sync := client.NewClockSynchronizer(client.NewHTTPTimeSource(hc, *endpoint, ""), clock, log.Logger)
	offset, err := sync.MeasureOffset(ctx)
	if err != nil {
		fmt.Printf("⚠️  Offset measurement failed, using 0: %v\n", err)
		offset = 0
	} else {
		fmt.Printf("Offset: %dms (rtt %s)\n", int64(offset), sync.LastSample().RTT)
	}

	scheduler := client.NewScheduler(clock, log.Logger.Level(zerolog.WarnLevel))
	scheduler.PollInterval = *poll
	scheduler.SpinDuration = *spin

	for i := 1; i <= *runs; i++ {
		// one second ahead on the remote timeline
		target := client.TargetInstant(clock.Now().UnixMilli() - int64(offset) + 1000)
		fmt.Printf("\n[Test %d] Sleeping until: %s\n", i, target.Time().Format("15:04:05.000"))

		drift, err := scheduler.Await(ctx, target, offset)
		if err != nil {
			log.Fatal().Err(err).Msg("await")
		}

		fmt.Printf("   -> Woke up at: %s\n", time.Now().Format("15:04:05.000000"))
		client.LogDrift(drift)

		if drift > *poll {
			fmt.Println("   ⚠️  Warning: drift exceeds the poll interval. CPU might be overloaded or GC pause.")
		}
	}
}
