package version

// Version is overridden at build time with
// -ldflags "-X github.com/savaki/slack-dify-bot/pkg/version.Version=1.2.3"
var Version = "dev"
