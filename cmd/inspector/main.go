// Inspector is a small operational CLI: it polls a running tiergate and
// prints the capacity table, status classification, and active warnings.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/GoAffiliate/tiergate/internal/model"
)

type capacityReply struct {
	Capacity *model.CapacitySnapshot `json:"capacity"`
	Stale    bool                    `json:"stale"`
	Message  string                  `json:"message"`
}

type warningsReply struct {
	Warnings []model.Warning `json:"warnings"`
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "tiergate base URL")
	watch := flag.Duration("watch", 0, "poll interval; 0 prints once and exits")
	flag.Parse()

	client := &http.Client{Timeout: 10 * time.Second}

	for {
		if err := printOnce(client, *addr); err != nil {
			fmt.Fprintf(os.Stderr, "inspect failed: %v\n", err)
			if *watch == 0 {
				os.Exit(1)
			}
		}
		if *watch == 0 {
			return
		}
		time.Sleep(*watch)
	}
}

func printOnce(client *http.Client, addr string) error {
	var status model.SystemStatus
	if err := getJSON(client, addr+"/v1/capacity/status", &status); err != nil {
		return err
	}

	var cap capacityReply
	if err := getJSON(client, addr+"/v1/capacity", &cap); err != nil {
		return err
	}

	var warns warningsReply
	if err := getJSON(client, addr+"/v1/warnings", &warns); err != nil {
		return err
	}

	fmt.Printf("--- System Status ---\n")
	fmt.Printf("%-10s %s (%.1f%%)\n", status.Level, status.Message, status.Percent)
	if status.Stale {
		fmt.Println("(data is stale: last refresh failed)")
	}

	if cap.Capacity == nil {
		fmt.Println(cap.Message)
		return nil
	}

	fmt.Printf("\n--- Global Counters ---\n")
	fmt.Printf("%-8s %6d / %-6d remaining %d\n", "clicks", cap.Capacity.Clicks.Used, cap.Capacity.Clicks.Limit, cap.Capacity.Clicks.Remaining)
	fmt.Printf("%-8s %6d / %-6d remaining %d\n", "sales", cap.Capacity.Sales.Used, cap.Capacity.Sales.Limit, cap.Capacity.Sales.Remaining)

	fmt.Printf("\n--- Tiers ---\n")
	names := make([]string, 0, len(cap.Capacity.Tiers))
	for name := range cap.Capacity.Tiers {
		names = append(names, string(name))
	}
	sort.Strings(names)
	for _, name := range names {
		tc := cap.Capacity.Tiers[model.TierName(name)]
		fmt.Printf("%-10s %4d / %-4d available %3d  %.1f%% full\n", name, tc.Used, tc.Limit, tc.Available, tc.PercentFull)
	}

	if len(warns.Warnings) > 0 {
		fmt.Printf("\n--- Active Warnings ---\n")
		for _, w := range warns.Warnings {
			fmt.Printf("[%s] %-16s %s\n", w.Severity, w.Key, w.Message)
		}
	}
	fmt.Println()
	return nil
}

func getJSON(client *http.Client, url string, out interface{}) error {
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}
