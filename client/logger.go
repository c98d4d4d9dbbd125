package client

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
)

// RunReport holds everything the end-of-run summary prints.
type RunReport struct {
	RunID     string `json:"run_id"`
	Site      string `json:"site"`
	ItemURL   string `json:"item_url"`
	Agent     string `json:"agent"`
	ProxyInfo string `json:"proxy"`

	// [1] Clock & Timing
	TimeOfDay  string        `json:"time_of_day"`
	TargetTime time.Time     `json:"target_time"`
	FireTime   time.Time     `json:"fire_time"`
	Drift      time.Duration `json:"drift"`
	Clock      ClockSample   `json:"clock"`

	// [2] Attempts
	Polls    int          `json:"polls"`
	Attempts []AttemptLog `json:"attempts"`

	// [3] Result
	State AttemptState `json:"-"`
	Err   string       `json:"error,omitempty"`
}

// MarshalJSON writes State by name.
func (e RunReport) MarshalJSON() ([]byte, error) {
	type plain RunReport
	return json.Marshal(struct {
		plain
		Result string `json:"result"`
	}{plain(e), e.State.String()})
}

// PrintRunReport writes the colored end-of-run summary to stdout.
func PrintRunReport(e RunReport) {
	headerColor := color.New(color.FgHiCyan, color.Bold).SprintfFunc()
	sectionColor := color.New(color.FgHiYellow).SprintFunc()
	labelColor := color.New(color.FgWhite).SprintFunc()
	valueColor := color.New(color.FgHiWhite).SprintFunc()
	successColor := color.New(color.FgGreen, color.Bold).SprintFunc()
	errorColor := color.New(color.FgRed, color.Bold).SprintFunc()
	driftColor := color.New(color.FgHiMagenta).SprintfFunc()

	fmt.Println("\n\n" + headerColor("[Flash Buy Run Log]"))
	fmt.Printf("%s           : %s\n", labelColor("Run ID"), valueColor(e.RunID))
	fmt.Printf("%s             : %s\n", labelColor("Site"), valueColor(e.Site))
	fmt.Printf("%s             : %s\n", labelColor("Item"), valueColor(e.ItemURL))
	fmt.Printf("%s            : %s\n", labelColor("Agent"), valueColor(e.Agent))
	fmt.Printf("%s          : %s\n", labelColor("Network"), valueColor(e.ProxyInfo))

	fmt.Println("\n" + sectionColor("--------------------------------------------------"))
	fmt.Println(sectionColor("[1] Clock & Timing"))
	fmt.Println(sectionColor("--------------------------------------------------"))
	fmt.Printf("%s      : %s\n", labelColor("Configured Time"), valueColor(e.TimeOfDay))
	fmt.Printf("%s      : %s\n", labelColor("Target Instant"), valueColor(e.TargetTime.Format("2006-01-02 15:04:05.000")))
	if !e.FireTime.IsZero() {
		fmt.Printf("%s        : %s\n", labelColor("Fired At"), valueColor(e.FireTime.Format("2006-01-02 15:04:05.000")))
		fmt.Printf("%s            : %s\n", labelColor("Drift"), driftColor("+%d ms", e.Drift.Milliseconds()))
	}
	fmt.Printf("%s     : %s\n", labelColor("Clock Offset"), valueColor(fmt.Sprintf("%d ms (local - remote)", e.Clock.Offset)))
	fmt.Printf("%s   : %s\n", labelColor("Sample RTT"), valueColor(fmt.Sprintf("%d ms", e.Clock.RTT.Milliseconds())))

	fmt.Println("\n" + sectionColor("--------------------------------------------------"))
	fmt.Println(sectionColor("[2] Attempts"))
	fmt.Println(sectionColor("--------------------------------------------------"))
	fmt.Printf("%s    : %s\n", labelColor("Page Polls"), valueColor(fmt.Sprintf("%d", e.Polls)))
	for _, a := range e.Attempts {
		fmt.Printf("  [%02d] %s  → %s (%s, %d ms)\n", a.Attempt, a.At.Format("15:04:05.000"), a.Result, a.Detail, a.Elapsed.Milliseconds())
	}

	fmt.Println("\n" + sectionColor("--------------------------------------------------"))
	fmt.Println(sectionColor("[3] Result"))
	fmt.Println(sectionColor("--------------------------------------------------"))

	resColor := errorColor
	if e.State == Submitted {
		resColor = successColor
	}
	fmt.Printf("%s           : %s\n", labelColor("Result"), resColor(e.State.String()))
	if e.Err != "" {
		fmt.Printf("%s            : %s\n", labelColor("Error"), errorColor(e.Err))
	}

	if e.State == Submitted {
		fmt.Println("\n" + successColor("订单已提交 (ORDER SUBMITTED)"))
	} else {
		fmt.Println("\n" + errorColor("未能抢购 (PURCHASE FAILED)"))
	}
}

// WriteStructuredLog appends the report as a JSON line to filename.
func WriteStructuredLog(e RunReport, filename string) error {
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	defer f.Close()

	b, err := json.Marshal(e)
	if err != nil {
		return err
	}

	if _, err := f.Write(b); err != nil {
		return err
	}
	if _, err := f.WriteString("\n"); err != nil {
		return err
	}
	return nil
}
