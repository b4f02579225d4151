package opencloud

import "fmt"

// Version is the library version reported in the User-Agent header.
const Version = "1.0.0"

// DefaultBaseURL is the root every Open Cloud path is resolved against.
const DefaultBaseURL = "https://apis.roblox.com/"

// DefaultUserAgent identifies this library to Roblox.
var DefaultUserAgent = fmt.Sprintf("rblxcloud/%s (Go; +https://create.roblox.com/docs/cloud)", Version)
