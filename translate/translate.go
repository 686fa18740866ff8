// Package translate localizes the human readable text of the runtime: the
// sentinel and typed errors of every package, the refusal reasons carried by
// driver.ErrAsyncOp, the board description diagnostics, and the Verbose
// traces of the loop, drivers and simulated devices.
//
// Bytes that go out on a simulated UART, such as log stream lines, are a wire
// format and are never translated.
package translate

import (
	"log"

	"github.com/jeandeaual/go-locale"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// FALLBACK_LOCALE is used when the host reports no locale.
var FALLBACK_LOCALE = language.AmericanEnglish

var printer = hostPrinter()

// hostPrinter matches the host locales against the message catalog.
func hostPrinter() *message.Printer {
	locales, err := locale.GetLocales()
	if err != nil {
		log.Printf("halrt: locale: %v", err)
	}

	if len(locales) == 0 {
		locales = []string{FALLBACK_LOCALE.String()}
	}

	return message.NewPrinter(message.MatchLanguage(locales...))
}

// From an en-US Sprintf() format, translate to string.
func From(key message.Reference, args ...any) string {
	return printer.Sprintf(key, args...)
}

// Logf translates an en-US Printf() format for a Verbose trace, and sends it
// to the standard logger.
func Logf(key message.Reference, args ...any) {
	log.Print(printer.Sprintf(key, args...))
}
