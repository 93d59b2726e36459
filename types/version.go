package types

// Version is the canonical project version.
const Version = "0.3.0"

// Reporter is the default reporter tag placed in config reports.
const Reporter = "ansible"
