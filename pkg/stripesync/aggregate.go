package stripesync

import "time"

// invoiceTimestamp returns the configured timestamp for a stored invoice.
// Returns false when the invoice lacks the configured field (older invoices
// may have been written without state transition data).
func invoiceTimestamp(inv StoredInvoice, tsType TimestampType) (time.Time, bool) {
	switch tsType {
	case TimestampPaymentDate:
		if inv.PaidAt == 0 {
			return time.Time{}, false
		}
		return time.Unix(inv.PaidAt, 0).UTC(), true
	default:
		return time.Unix(inv.PeriodEnd, 0).UTC(), true
	}
}

// totals computes the month-to-date and lifetime paid/due sums over a
// customer's invoice history. The month window is [first day of the current
// month, first day of the next month) in UTC. Invoices whose configured
// timestamp is missing count toward the lifetime sums only.
//
// Sums are accumulated in minor units and divided by 100 exactly once here;
// everything downstream (event properties, $set snapshots) uses the result
// as-is.
func totals(history []StoredInvoice, now time.Time, tsType TimestampType) Totals {
	now = now.UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	nextMonthStart := monthStart.AddDate(0, 1, 0)

	var paidMTD, paidTotal, dueMTD, dueTotal int64
	for _, inv := range history {
		paidTotal += inv.AmountPaid
		dueTotal += inv.AmountDue

		ts, ok := invoiceTimestamp(inv, tsType)
		if !ok {
			continue
		}
		if !ts.Before(monthStart) && ts.Before(nextMonthStart) {
			paidMTD += inv.AmountPaid
			dueMTD += inv.AmountDue
		}
	}

	return Totals{
		PaidMonthToDate: float64(paidMTD) / 100,
		PaidTotal:       float64(paidTotal) / 100,
		DueMonthToDate:  float64(dueMTD) / 100,
		DueTotal:        float64(dueTotal) / 100,
	}
}
