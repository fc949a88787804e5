// Package sheets publishes the customer table to a Google Sheets spreadsheet.
package sheets

import (
	"errors"
	"fmt"

	"github.com/Veraticus/rfm-flow/internal/common"
)

// Config holds the credentials and layout for publishing to Google Sheets.
type Config struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	ServiceAccountPath string
	// SpreadsheetID targets an existing spreadsheet; empty creates one named
	// SpreadsheetName on first publish.
	SpreadsheetID    string
	SpreadsheetName  string
	SheetTitle       string
	SummaryTitle     string
	TimeZone         string
	BatchSize        int
	EnableFormatting bool
}

// DefaultConfig returns the layout used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		EnableFormatting: true,
		SpreadsheetName:  "Customer Segments",
		SheetTitle:       "Customers",
		SummaryTitle:     "Segments",
		TimeZone:         "UTC",
		BatchSize:        1000,
	}
}

// Validate requires exactly one authentication method and a usable layout.
func (c *Config) Validate() error {
	hasOAuth := c.ClientID != "" && c.ClientSecret != "" && c.RefreshToken != ""
	hasServiceAccount := c.ServiceAccountPath != ""

	switch {
	case !hasOAuth && !hasServiceAccount:
		return fmt.Errorf("%w: no authentication method configured", common.ErrMissingConfig)
	case hasOAuth && hasServiceAccount:
		return errors.New("multiple authentication methods configured; use either OAuth2 or service account")
	case c.BatchSize <= 0:
		return errors.New("batch size must be positive")
	case c.SheetTitle == "":
		return errors.New("sheet title cannot be empty")
	case c.SheetTitle == c.SummaryTitle:
		return fmt.Errorf("summary tab %q must differ from the customer tab", c.SummaryTitle)
	}
	return nil
}
