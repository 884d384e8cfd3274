package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/md-rashed-zaman/frontdesk/internal/checkin"
)

// badge-gen renders the check-in QR badge for an appointment to a PNG file,
// for printing or embedding in confirmation emails without hitting the API.
func main() {
	var (
		appointmentID = flag.String("appointment-id", getenv("APPOINTMENT_ID", ""), "appointment to encode")
		out           = flag.String("out", getenv("OUT", "badge.png"), "output PNG path")
		size          = flag.Int("size", 256, "image size in pixels")
	)
	flag.Parse()

	if strings.TrimSpace(*appointmentID) == "" {
		fatal("APPOINTMENT_ID is required")
	}

	png, err := checkin.TokenPNG(strings.TrimSpace(*appointmentID), *size)
	if err != nil {
		fatal(err.Error())
	}
	if err := os.WriteFile(*out, png, 0o644); err != nil {
		fatal(err.Error())
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(png))
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, "badge-gen: "+msg)
	os.Exit(1)
}
