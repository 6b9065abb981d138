package main

import (
	"errors"
	"flag"
	"fmt"
	"io"

	"github.com/agaraleas/RideSync/config"
	"github.com/agaraleas/RideSync/domain"
	"github.com/agaraleas/RideSync/logging"
)

// Interface for generic Command Line Argument handling
type CmdLineArgError struct {
	msg  string
	code ReturnCode
}

type CmdLineArg interface {
	register(fs *flag.FlagSet)
	handle(cfg *config.AppConfig) *CmdLineArgError
}

// parseCommandLineArgs builds the configuration from defaults, the optional
// YAML file, the environment and finally the flags themselves.
func parseCommandLineArgs(argv []string) (config.AppConfig, *CmdLineArgError) {
	fs := flag.NewFlagSet("ridesync", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	args := gatherCommandLineArgTemplates()
	for _, arg := range args {
		arg.register(fs)
	}

	cfg := config.Defaults()
	if err := fs.Parse(argv); err != nil {
		logging.Log.Errorf("Failed to parse command line: %v", err)
		return cfg, &CmdLineArgError{msg: err.Error(), code: InvalidArgsError}
	}
	if fs.NArg() > 0 {
		errMsg := fmt.Sprintf("Unexpected positional arguments: %v", fs.Args())
		return cfg, &CmdLineArgError{msg: errMsg, code: InvalidArgsError}
	}

	if err := handleCommandLineArgValues(args, &cfg); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		logging.Log.Error(err)
		return cfg, &CmdLineArgError{msg: err.Error(), code: InvalidConfigError}
	}
	return cfg, nil
}

func handleCommandLineArgValues(args []CmdLineArg, cfg *config.AppConfig) *CmdLineArgError {
	for _, arg := range args {
		err := arg.handle(cfg)

		if err != nil {
			return err
		}
	}

	return nil
}

// Order matters: the config file is applied before flags override it.
func gatherCommandLineArgTemplates() []CmdLineArg {
	var argTemplates []CmdLineArg
	argTemplates = append(argTemplates, &helpCmdLineArg{})
	argTemplates = append(argTemplates, &configFileCmdLineArg{})
	argTemplates = append(argTemplates, &endpointsCmdLineArg{})
	argTemplates = append(argTemplates, &logLevelCmdLineArg{})
	argTemplates = append(argTemplates, &sessionCmdLineArg{})
	return argTemplates
}

// Cmd Line Arg: Help
type helpCmdLineArg struct {
	help bool
}

func (arg *helpCmdLineArg) register(fs *flag.FlagSet) {
	fs.BoolVar(&arg.help, "h", false, "Show help")
	fs.BoolVar(&arg.help, "help", false, "Show help")
}

func (arg *helpCmdLineArg) handle(cfg *config.AppConfig) *CmdLineArgError {
	if arg.help {
		helpMsg := createHelpMessage()
		return &CmdLineArgError{msg: helpMsg, code: NormalExit}
	}
	return nil
}

func createHelpMessage() string {
	msg := "==== RIDESYNC ====\n" +
		"Keeps a live view of a user's rides in sync with the ride-hailing\n" +
		"backend over its realtime channel and durable API.\n\n" +
		"Flags:\n" +
		"  --config <file>      YAML configuration file\n" +
		"  --user-id <id>       user to connect as\n" +
		"  --role <role>        client (passenger), driver or admin\n" +
		"  --token <token>      bearer token\n" +
		"  --socket-url <url>   realtime base address\n" +
		"  --api-url <url>      durable API base address\n" +
		"  --log-level <level>  trace, debug, info, warn or error\n\n" +
		"Environment variables prefixed with RIDESYNC_ and a .env file are also read."
	return msg
}

// Cmd Line Arg: Config File
type configFileCmdLineArg struct {
	path string
}

func (arg *configFileCmdLineArg) register(fs *flag.FlagSet) {
	fs.StringVar(&arg.path, "config", "", "YAML configuration file")
}

func (arg *configFileCmdLineArg) handle(cfg *config.AppConfig) *CmdLineArgError {
	if arg.path != "" {
		if err := cfg.LoadFromFile(arg.path); err != nil {
			logging.Log.Error(err)
			return &CmdLineArgError{msg: err.Error(), code: InvalidConfigError}
		}
	}

	if err := cfg.LoadEnv(); err != nil {
		logging.Log.Error(err)
		return &CmdLineArgError{msg: err.Error(), code: InvalidConfigError}
	}
	return nil
}

// Cmd Line Arg: Endpoints
type endpointsCmdLineArg struct {
	socketURL string
	apiURL    string
}

func (arg *endpointsCmdLineArg) register(fs *flag.FlagSet) {
	fs.StringVar(&arg.socketURL, "socket-url", "", "Realtime base address (ws, wss, http or https)")
	fs.StringVar(&arg.apiURL, "api-url", "", "Durable API base address")
}

func (arg *endpointsCmdLineArg) handle(cfg *config.AppConfig) *CmdLineArgError {
	if arg.socketURL != "" {
		cfg.Realtime.BaseURL = arg.socketURL
	}
	if arg.apiURL != "" {
		cfg.API.BaseURL = arg.apiURL
	}
	return nil
}

// Cmd Line Arg: Log Level
type logLevelCmdLineArg struct {
	level string
}

func (arg *logLevelCmdLineArg) register(fs *flag.FlagSet) {
	fs.StringVar(&arg.level, "log-level", "", "Log level")
}

func (arg *logLevelCmdLineArg) handle(cfg *config.AppConfig) *CmdLineArgError {
	if arg.level != "" {
		cfg.Log.Level = arg.level
	}
	if err := logging.InitLogging(cfg.Log.Level, cfg.Log.Format); err != nil {
		errMsg := fmt.Sprintf("Error in parsing arg --log-level. %v", err)
		return &CmdLineArgError{msg: errMsg, code: InvalidConfigError}
	}
	return nil
}

// Cmd Line Arg: Session
type sessionCmdLineArg struct {
	userID string
	role   string
	token  string
}

var errMissingUser = errors.New("a user id is required")

func (arg *sessionCmdLineArg) register(fs *flag.FlagSet) {
	fs.StringVar(&arg.userID, "user-id", "", "User to connect as")
	fs.StringVar(&arg.role, "role", "", "Role of the user: client, driver or admin")
	fs.StringVar(&arg.token, "token", "", "Bearer token for the socket and the API")
}

func (arg *sessionCmdLineArg) handle(cfg *config.AppConfig) *CmdLineArgError {
	if arg.userID != "" {
		cfg.Session.UserID = domain.ID(arg.userID)
	}
	if arg.role != "" {
		cfg.Session.Role = arg.role
	}
	if arg.token != "" {
		cfg.Session.Token = arg.token
	}

	if cfg.Session.UserID.IsZero() {
		logging.Log.Error(errMissingUser)
		return &CmdLineArgError{msg: "Error in parsing arg --user-id. " + errMissingUser.Error(), code: InvalidArgsError}
	}
	if _, err := domain.ParseRole(cfg.Session.Role); err != nil {
		logging.Log.Errorf("Role parsing failed. Role '%s' is not valid", cfg.Session.Role)
		errMsg := fmt.Sprintf("Error in parsing arg --role. Invalid role: %s", cfg.Session.Role)
		return &CmdLineArgError{msg: errMsg, code: InvalidArgsError}
	}
	return nil
}
