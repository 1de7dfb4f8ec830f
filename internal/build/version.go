package build

// Version is overridden at link time with -ldflags "-X mt5-command-server/internal/build.Version=..."
var Version = "dev"
