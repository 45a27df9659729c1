package main

import (
	"fmt"
	"io"

	qrcode "github.com/skip2/go-qrcode"
)

// displayClientQR renders the client WebSocket URL as a terminal QR code
// so a phone can be pointed at the broker without typing the address.
func displayClientQR(w io.Writer, clientURL string) {
	// Medium error correction keeps the code compact enough for a
	// terminal while tolerating imperfect rendering.
	qr, err := qrcode.New(clientURL, qrcode.Medium)
	if err != nil {
		fmt.Fprintf(w, "Error generating QR code: %v\n", err)
		fmt.Fprintf(w, "Connect manually: %s\n", clientURL)
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "         SCAN TO CONNECT")
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")

	// ToSmallString(false) produces compact half-block output without a border.
	fmt.Fprint(w, qr.ToSmallString(false))

	fmt.Fprintln(w, "-------------------------------------------")
	fmt.Fprintf(w, "  URL: %s\n", clientURL)
	fmt.Fprintln(w, "===========================================")
	fmt.Fprintln(w, "")
}
