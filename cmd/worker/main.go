package main

import (
	"fmt"
	"os"
	"strconv"

	log "github.com/sirupsen/logrus"

	"github.com/wikieden/tachyon/pkg/tachyon"
	"github.com/wikieden/tachyon/pkg/worker"
)

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  worker <addr> <root path> <master addr> <capacity bytes>")
	fmt.Println()
}

func main() {
	log.SetLevel(log.InfoLevel)
	if len(os.Args) < 5 {
		printUsage()
		return
	}

	addr, err := tachyon.ParseNetAddress(os.Args[1])
	if err != nil {
		log.Fatal("bad worker address: ", err)
	}
	root := os.Args[2]
	masterAddr, err := tachyon.ParseNetAddress(os.Args[3])
	if err != nil {
		log.Fatal("bad master address: ", err)
	}
	capacityBytes, err := strconv.ParseInt(os.Args[4], 10, 64)
	if err != nil {
		log.Fatal("bad capacity: ", err)
	}

	w, err := worker.New(addr, masterAddr, root, capacityBytes)
	if err != nil {
		log.Fatal("worker init error: ", err)
	}
	if err := w.Serve(); err != nil {
		log.Fatal("worker serve error: ", err)
	}

	ch := make(chan bool)
	<-ch
}
