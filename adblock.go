package screenshot

// blockedURLPatterns are handed to the DevTools network domain when a capture
// requests ad blocking. The list targets the ad and tracking hosts that most
// commonly distort screenshots with late-loading banners. Best effort, not a
// content blocker.
var blockedURLPatterns = []string{
	"*doubleclick.net*",
	"*googlesyndication.com*",
	"*googleadservices.com*",
	"*google-analytics.com*",
	"*googletagmanager.com*",
	"*facebook.net*",
	"*facebook.com/tr*",
	"*adservice*",
	"*ads.*",
	"*tracking.*",
}
