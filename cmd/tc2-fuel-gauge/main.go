package main

import (
	"os"

	fuelgauge "github.com/TheCacophonyProject/tc2-fuel-gauge/internal/fuelgauge"
	"github.com/sirupsen/logrus"
)

var version = "<not set>"

func main() {
	if err := fuelgauge.Run(os.Args[1:], version); err != nil {
		logrus.Fatal(err)
	}
}
