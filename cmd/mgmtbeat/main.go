// mgmtbeat: Beat на базе Elastic Beats v7 (libbeat) поверх ядра управления.
// После каждого опроса публикует температуру, троттлинг и рабочую точку CPU.
package main

import (
	"os"

	"github.com/elastic/beats/v7/libbeat/cmd"
	"github.com/elastic/beats/v7/libbeat/cmd/instance"
	"github.com/shiwa/mgmtcore/internal/beater"
)

func main() {
	rootCmd := cmd.GenRootCmdWithSettings(beater.New, instance.Settings{
		Name: "mgmtbeat",
	})
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
