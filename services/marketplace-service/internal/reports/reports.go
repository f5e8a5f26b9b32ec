// Package reports renders admin exports and booking QR codes.
package reports

import (
	"bytes"
	"fmt"

	"github.com/allowork/allowork/services/marketplace-service/internal/marketplace"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/skip2/go-qrcode"
	"github.com/xuri/excelize/v2"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	bookingsSheet   = "Réservations"
	qrSize          = 256
)

var bookingHeaders = []string{
	"Référence", "Date", "Service", "Client", "Prestataire", "Statut", "Montant (FCFA)", "Créée le",
}

var statusLabels = map[model.BookingStatus]string{
	model.BookingPending:   "En attente",
	model.BookingConfirmed: "Confirmée",
	model.BookingCompleted: "Terminée",
	model.BookingCancelled: "Annulée",
}

// ExportBookings renders rows as an XLSX workbook with a header row and a
// total line.
func ExportBookings(rows []marketplace.BookingRow) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", bookingsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	for i, h := range bookingHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(bookingsSheet, cell, h); err != nil {
			return nil, fmt.Errorf("header %s: %w", cell, err)
		}
	}

	var total int64
	for i, r := range rows {
		b := r.Booking
		values := []any{
			b.ID, b.Date, r.ServiceTitle, r.ClientName, r.ProviderName,
			statusLabel(b.Status), b.TotalPrice, b.CreatedAt.Format("02/01/2006 15:04"),
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(bookingsSheet, cell, &values); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		total += b.TotalPrice
	}

	totalRow := len(rows) + 2
	if err := f.SetCellValue(bookingsSheet, fmt.Sprintf("F%d", totalRow), "Total"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(bookingsSheet, fmt.Sprintf("G%d", totalRow), total); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("style: %w", err)
	}
	if err := f.SetCellStyle(bookingsSheet, "A1", "H1", bold); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(bookingsSheet, fmt.Sprintf("F%d", totalRow), fmt.Sprintf("G%d", totalRow), bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(bookingsSheet, "A", "H", 20); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func statusLabel(s model.BookingStatus) string {
	if l, ok := statusLabels[s]; ok {
		return l
	}
	return string(s)
}

// BookingReference is the text encoded in a booking's QR code.
func BookingReference(b model.Booking) string {
	return fmt.Sprintf("ALLOWORK:BOOKING:%s:%s:%d", b.ID, b.Date, b.TotalPrice)
}

// BookingQRCode returns a PNG QR code of the booking reference.
func BookingQRCode(b model.Booking) ([]byte, error) {
	png, err := qrcode.Encode(BookingReference(b), qrcode.Medium, qrSize)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return png, nil
}
