package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/gordonklaus/portaudio"

	"voudp/internal/clientaudio"
	"voudp/internal/clientcfg"
	"voudp/internal/netclient"
)

const (
	sampleRate   = 48000
	frameSamples = 960 // 20ms at 48kHz
)

func main() {
	addrFlag := flag.String("addr", "", "server address host:port (defaults to last connection)")
	passFlag := flag.String("passphrase", "", "shared passphrase (defaults to last connection)")
	channelFlag := flag.Uint("channel", 0, "channel id to join on connect (0 = use last connection)")
	nickname := flag.String("nick", "", "display name to set on connect")
	flag.Parse()

	last := clientcfg.Load()
	addr := firstNonEmpty(*addrFlag, last.Addr)
	passphrase := firstNonEmpty(*passFlag, last.Passphrase)
	channelID := uint32(*channelFlag)
	if channelID == 0 {
		channelID = last.ChannelID
	}
	if channelID == 0 {
		channelID = 1
	}
	if addr == "" || passphrase == "" {
		log.Fatal("[voudp-client] -addr and -passphrase are required on first connection")
	}

	if err := portaudio.Initialize(); err != nil {
		log.Fatalf("[voudp-client] portaudio init: %v", err)
	}
	defer portaudio.Terminate()

	engine := clientaudio.New(frameSamples)
	if err := engine.Start(sampleRate, 1); err != nil {
		log.Fatalf("[voudp-client] start audio engine: %v", err)
	}
	defer engine.Stop()

	client, err := netclient.Dial(addr, passphrase, sampleRate, frameSamples, engine)
	if err != nil {
		log.Fatalf("[voudp-client] dial: %v", err)
	}
	if err := client.Join(channelID); err != nil {
		log.Fatalf("[voudp-client] join: %v", err)
	}
	if *nickname != "" {
		if err := client.SetMask(*nickname); err != nil {
			log.Printf("[voudp-client] set nick: %v", err)
		}
	}

	if err := clientcfg.Save(clientcfg.State{Addr: addr, Passphrase: passphrase, ChannelID: channelID}); err != nil {
		log.Printf("[voudp-client] save last-connect state: %v", err)
	}

	stop := make(chan struct{})
	go client.Run(stop)
	go printEvents(client)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)

	inputLines := make(chan string)
	go readStdin(inputLines)

	fmt.Printf("connected to %s, channel %d. Type a message to chat, or /command.\n", addr, channelID)
	for {
		select {
		case <-sigCh:
			close(stop)
			_ = client.Disconnect()
			return
		case line, ok := <-inputLines:
			if !ok {
				close(stop)
				_ = client.Disconnect()
				return
			}
			handleLine(client, line)
		}
	}
}

func handleLine(client *netclient.Client, line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	var err error
	if strings.HasPrefix(line, "/") {
		err = client.SendCommand(line)
	} else {
		err = client.SendChat(line)
	}
	if err != nil {
		log.Printf("[voudp-client] send: %v", err)
	}
}

func readStdin(out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		out <- scanner.Text()
	}
}

func printEvents(client *netclient.Client) {
	for ev := range client.Events {
		switch ev.Kind {
		case netclient.EventChat:
			fmt.Printf("%s: %s\n", ev.Chat.SenderMask, ev.Chat.Message)
		case netclient.EventUnauthChatNotice:
			fmt.Println("(chat requires a nickname; set one with /nick)")
		case netclient.EventFlowJoin:
			fmt.Printf("* %s joined\n", ev.Mask)
		case netclient.EventFlowLeave:
			fmt.Printf("* %s left\n", ev.Mask)
		case netclient.EventFlowRenick:
			fmt.Printf("* %s is now known as %s\n", ev.OldMask, ev.NewMask)
		case netclient.EventCmdSuccess:
			fmt.Printf("-> %s\n", ev.Message)
		case netclient.EventCmdError:
			fmt.Printf("!! %s\n", ev.Message)
		case netclient.EventDM:
			fmt.Printf("(whisper) %s\n", ev.Message)
		case netclient.EventList:
			for _, ch := range ev.List.Channels {
				names := make([]string, 0, len(ch.Users))
				for _, u := range ch.Users {
					names = append(names, u.Mask)
				}
				fmt.Printf("[%s: %s]\n", ch.Name, strings.Join(names, ", "))
			}
		case netclient.EventCommands:
			fmt.Printf("[server supports %d commands]\n", len(ev.Commands))
		}
	}
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
