/*
Package mptcpはマルチパスTCPのコネクション制御とデータシーケンス管理の実装パッケージです。

ここではコネクションの確立から終了までの一連の流れについて説明します。

# Connect

このサンプルでは、インメモリのトランスポートを使ってコネクションを確立します。
実際の経路を使う場合は transport/websocket の Dialer と Server を使用します。

	package main

	import (
		"context"
		"log"
		"net/netip"

		"github.com/aptpod/mptcp-go/mptcp"
		"github.com/aptpod/mptcp-go/transport/pipe"
	)

	func main() {
		ctx := context.Background()

		var (
			client = netip.MustParseAddrPort("10.0.0.1:40000")
			server = netip.MustParseAddrPort("192.0.2.1:443")
		)

		network := pipe.NewNetwork()
		defer network.Close()

		// Listenerは、MP_CAPABLEのSYNからコネクションを生成し、MP_JOINのSYNをトークンで振り分けます。
		ln := mptcp.NewListener()
		defer ln.Close()
		if err := network.Listen(server, ln); err != nil {
			log.Fatal(err)
		}

		conn, err := mptcp.Dial(ctx, network, client, server)
		if err != nil {
			log.Fatalf("failed to dial: %v", err)
		}
		defer conn.Abort()

		// マスターサブフローの確立を待ちます。
		if err := conn.WaitEstablished(ctx); err != nil {
			log.Fatal(err)
		}

		peer, err := ln.Accept(ctx)
		if err != nil {
			log.Fatal(err)
		}
		defer peer.Abort()

		log.Println("established connection")
	}

# Add Subflow

コネクションが完全確立した後は、MP_JOINでサブフローを追加できます。
完全確立の前は errors.ErrNotFullyEstablished が返るため、イベントハンドラで完全確立を待ちます。

	fully := make(chan struct{})
	conn, err := mptcp.Dial(ctx, network, client, server,
		mptcp.WithConnScheduler(scheduler.NewECF()),
		mptcp.WithConnFullyEstablishedEventHandler(mptcp.FullyEstablishedEventHandlerFunc(func(*mptcp.FullyEstablishedEvent) {
			close(fully)
		})),
		mptcp.WithConnSubflowEstablishedEventHandler(mptcp.SubflowEstablishedEventHandlerFunc(func(ev *mptcp.SubflowEstablishedEvent) {
			log.Printf("subflow established %v -> %v", ev.Local, ev.Remote)
		})),
	)
	if err != nil {
		log.Fatal(err)
	}
	<-fully

	// 2つ目のローカルアドレスからサブフローを追加します。
	if _, err := conn.ConnectNewSubflow(ctx, netip.MustParseAddrPort("10.0.1.1:40001"), server); err != nil {
		log.Fatal(err)
	}

# Send And Receive

Sendは全てのバイトが受け付けられるまでブロックします。
受け付けたバイトはスケジューラが選んだサブフローへ割り当てられ、受信側でデータシーケンス番号の順に並べ直されます。

	if _, err := conn.Send(ctx, []byte("hello")); err != nil {
		log.Fatal(err)
	}

	buf, err := peer.Receive(ctx, 1024)
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("received %q", buf)

# Close

Closeはグレースフルなクローズを開始します。全てのバイトが確認応答された後にDATA_FINを送信し、
ピアのDATA_FINまで読み出すと Receive は io.EOF を返します。

	if err := conn.Close(ctx); err != nil {
		log.Fatal(err)
	}
	for {
		if _, err := peer.Receive(ctx, 1024); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			log.Fatal(err)
		}
	}
	if err := peer.Close(ctx); err != nil {
		log.Fatal(err)
	}
	<-conn.Done()
*/
package mptcp
