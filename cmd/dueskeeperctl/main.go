package main

import (
	"context"
	"log"
	"os"
	"strings"

	"github.com/dueskeeper/dueskeeper/internal/cli"
	"github.com/dueskeeper/dueskeeper/internal/config"
)

// commandArgs strips the configuration flags consumed by config.LoadConfig,
// leaving the subcommand and its own flags.
func commandArgs(args []string) []string {
	consumed := map[string]struct{}{
		"-c": {}, "-config": {},
		"-f": {}, "-l": {}, "-i": {}, "-d": {}, "-r": {},
		"-gho": {}, "-ghr": {}, "-ghp": {}, "-ghb": {}, "-ght": {},
		"-b": {}, "-k": {}, "-g": {}, "-e": {}, "-u": {}, "-p": {},
		"-ta": {}, "-tm": {}, "-s": {},
	}

	var out []string
	for i := 0; i < len(args); i++ {
		if _, ok := consumed[args[i]]; ok {
			// skip the flag's value too, same rule as flagx.FilterArgs
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				i++
			}
			continue
		}
		if strings.HasPrefix(args[i], "-") && strings.Contains(args[i], "=") {
			name := strings.SplitN(args[i], "=", 2)[0]
			if _, ok := consumed[name]; ok {
				continue
			}
		}
		out = append(out, args[i])
	}
	return out
}

func main() {

	ctx := context.Background()
	cfg := config.LoadConfig()
	a := cli.NewApp(cfg)

	if err := a.Run(ctx, commandArgs(os.Args[1:])); err != nil {
		log.Printf("%v", err)
		os.Exit(1)
	}

}
