package payments

import (
	"fmt"
	"strings"
	"time"
)

// Timeframe selects the reporting window.
type Timeframe string

const (
	Today Timeframe = "today"
	Week  Timeframe = "week"
	Month Timeframe = "month"
)

// ParseTimeframe accepts today, week or month. Empty means week.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToLower(strings.TrimSpace(s))); tf {
	case "":
		return Week, nil
	case Today, Week, Month:
		return tf, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidTimeframe, s)
	}
}

// Window returns the period from the start of the timeframe up to now, in
// now's location. Weeks start on Sunday.
func (tf Timeframe) Window(now time.Time) (time.Time, time.Time) {
	y, m, d := now.Date()
	loc := now.Location()
	switch tf {
	case Today:
		return time.Date(y, m, d, 0, 0, 0, 0, loc), now
	case Month:
		return time.Date(y, m, 1, 0, 0, 0, 0, loc), now
	default:
		return time.Date(y, m, d-int(now.Weekday()), 0, 0, 0, 0, loc), now
	}
}

var weekdayLabels = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// DailyTotal is one bar of the weekly earnings chart.
type DailyTotal struct {
	Label string `json:"label"`
	Total int64  `json:"total"`
}

// Report summarises an operator's earnings over a timeframe.
type Report struct {
	Timeframe        Timeframe    `json:"timeframe"`
	From             time.Time    `json:"from"`
	To               time.Time    `json:"to"`
	TotalRevenue     int64        `json:"total_revenue"`
	FormattedTotal   string       `json:"formatted_total"`
	TransactionCount int          `json:"transaction_count"`
	Daily            []DailyTotal `json:"daily,omitempty"`
	Payments         []Payment    `json:"payments"`
}

// BuildReport totals payments that fall in the timeframe's window. Only the
// weekly report carries daily totals, indexed Sunday first.
func BuildReport(tf Timeframe, now time.Time, payments []Payment) Report {
	from, to := tf.Window(now)
	r := Report{Timeframe: tf, From: from, To: to, Payments: []Payment{}}
	if tf == Week {
		r.Daily = make([]DailyTotal, len(weekdayLabels))
		for i, label := range weekdayLabels {
			r.Daily[i].Label = label
		}
	}
	for _, p := range payments {
		if p.PaidAt.Before(from) || p.PaidAt.After(to) {
			continue
		}
		r.Payments = append(r.Payments, p)
		r.TotalRevenue += p.AmountPaid
		if r.Daily != nil {
			r.Daily[p.PaidAt.In(now.Location()).Weekday()].Total += p.AmountPaid
		}
	}
	r.TransactionCount = len(r.Payments)
	r.FormattedTotal = FormatCurrency(r.TotalRevenue)
	return r
}
