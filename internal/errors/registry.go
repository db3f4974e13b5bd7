package errors

// Template defines a registered error type.
type Template struct {
	Category Category
	Message  string
	Detail   string
}

// registry maps error codes to their templates.
var registry = map[string]Template{
	// Configuration (C100-C199)

	"C100": {
		Category: CategoryConfig,
		Message:  "Cannot read configuration file",
		Detail:   "The configuration file does not exist or is not readable.",
	},
	"C101": {
		Category: CategoryConfig,
		Message:  "Invalid configuration syntax",
		Detail:   "The configuration file is not valid JSON.",
	},
	"C102": {
		Category: CategoryConfig,
		Message:  "Invalid configuration value",
		Detail:   "A configuration field has the wrong type or an out-of-range value.",
	},
	"C103": {
		Category: CategoryConfig,
		Message:  "Invalid listen address",
		Detail:   "Listen addresses take the form host:port; an empty host listens on every interface.",
	},
	"C104": {
		Category: CategoryConfig,
		Message:  "No transport enabled",
		Detail:   "At least one of the stream, datagram or admin listeners must be configured.",
	},
	"C105": {
		Category: CategoryConfig,
		Message:  "Conflicting catalog sources",
		Detail:   "The movie catalog is read either from a file or from S3, not both.",
	},

	// Startup (C200-C299)

	"C200": {
		Category: CategoryStartup,
		Message:  "Cannot load movie catalog",
		Detail:   "The movie catalog could not be read or contains invalid entries.",
	},
	"C201": {
		Category: CategoryStartup,
		Message:  "Cannot listen",
		Detail:   "The address is in use or the process lacks permission to bind it.",
	},
	"C202": {
		Category: CategoryStartup,
		Message:  "Server stopped unexpectedly",
		Detail:   "A listener failed while the server was running.",
	},
	"C203": {
		Category: CategoryStartup,
		Message:  "Probe failed",
		Detail:   "The probe client could not complete a login handshake with the server.",
	},
}

// Lookup returns the template for an error code.
func Lookup(code string) (Template, bool) {
	t, ok := registry[code]
	return t, ok
}
