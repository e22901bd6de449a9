package main

import (
	"fmt"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/wikieden/tachyon/pkg/master"
)

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  master <addr> <underfs address>")
	fmt.Println()
}

func main() {
	log.SetLevel(log.InfoLevel)
	if len(os.Args) < 3 {
		printUsage()
		return
	}
	addr := os.Args[1]
	underfsAddress := os.Args[2]

	svc := master.NewMasterService(underfsAddress, time.Now)
	if _, err := master.NewServer(addr, svc); err != nil {
		log.Fatal("master listen error: ", err)
	}

	ch := make(chan bool)
	<-ch
}
