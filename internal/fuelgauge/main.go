/*
tc2-fuel-gauge - State of charge estimation for the tc2 fuel gauge
Copyright (C) 2025, The Cacophony Project

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/

package fuelgauge

import (
	"errors"
	"fmt"
	"os"
	"strings"

	goconfig "github.com/TheCacophonyProject/go-config"
	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
)

var version = "<not set>"

var log = logrus.New()

type Args struct {
	Service   *subcommand `arg:"subcommand:service" help:"Run the fuel gauge service."`
	Read      *subcommand `arg:"subcommand:read"    help:"Initialise the gauge and print one reading."`
	Dump      *subcommand `arg:"subcommand:dump"    help:"Print the gauge registers."`
	IOCV      *subcommand `arg:"subcommand:iocv"    help:"Run the initial OCV estimate against the device buffers."`
	ConfigDir string      `arg:"-c, --config-dir" help:"Directory holding the config files"`
	LogLevel  string      `arg:"-l, --log-level" default:"info" help:"Set the logging level (debug, info, warn, error)"`
}

type subcommand struct {
}

func (Args) Version() string {
	return version
}

var defaultArgs = Args{
	ConfigDir: goconfig.DefaultConfigDir,
}

func procArgs(input []string) (Args, error) {
	args := defaultArgs

	parser, err := arg.NewParser(arg.Config{}, &args)
	if err != nil {
		return Args{}, err
	}
	err = parser.Parse(input)
	if errors.Is(err, arg.ErrHelp) {
		parser.WriteHelp(os.Stdout)
		os.Exit(0)
	}
	if errors.Is(err, arg.ErrVersion) {
		fmt.Println(version)
		os.Exit(0)
	}
	return args, err
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		log.SetLevel(logrus.DebugLevel)
	case "info":
		log.SetLevel(logrus.InfoLevel)
	case "warn":
		log.SetLevel(logrus.WarnLevel)
	case "error":
		log.SetLevel(logrus.ErrorLevel)
	default:
		log.SetLevel(logrus.InfoLevel)
		log.Warn("Unknown log level, defaulting to info")
	}
}

type customFormatter struct{}

func (f *customFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	return []byte(fmt.Sprintf("[%s] %s\n", strings.ToUpper(entry.Level.String()), entry.Message)), nil
}

func Run(inputArgs []string, ver string) error {
	version = ver
	args, err := procArgs(inputArgs)
	if err != nil {
		return fmt.Errorf("failed to parse args: %v", err)
	}
	log.SetFormatter(new(customFormatter))
	setLogLevel(args.LogLevel)

	log.Infof("Running version: %s", version)

	conf, err := loadConfig(args.ConfigDir)
	if err != nil {
		return err
	}

	switch {
	case args.Read != nil:
		return readOnce(conf)
	case args.Dump != nil:
		return dumpRegisters(conf)
	case args.IOCV != nil:
		return estimateIOCV(conf)
	default:
		return runService(conf)
	}
}
