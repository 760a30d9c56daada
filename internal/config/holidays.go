package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"algotrader/internal/marketcal"
)

// LoadHolidays reads the exchange holiday file: one YYYY-MM-DD date
// per line, blank lines and lines starting with # ignored. A missing
// path yields an empty list so the calendar falls back to weekends
// only.
func LoadHolidays(path string) ([]string, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open holidays file: %w", err)
	}
	defer f.Close()

	var holidays []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if _, err := time.Parse(marketcal.DateLayout, line); err != nil {
			return nil, fmt.Errorf("invalid holiday date %q: %w", line, err)
		}
		holidays = append(holidays, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read holidays file: %w", err)
	}
	return holidays, nil
}
