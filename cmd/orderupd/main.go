package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"orderup-go/internal/container"
)

func main() {
	cfgPath := flag.String("config", "configs/orderup.yaml", "配置文件路径")
	autostart := flag.Bool("autostart", false, "启动后立即开始第一局")
	healthEvery := flag.Duration("healthInterval", 30*time.Second, "健康检查间隔，0 关闭")
	flag.Parse()

	c, err := container.New(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	if err := c.Build(); err != nil {
		log.Fatalf("构建组件失败: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		log.Fatalf("启动失败: %v", err)
	}
	log.Printf("orderupd listening on %s", c.APIAddr())

	if *autostart {
		if err := c.Engine().StartRound(ctx); err != nil {
			log.Printf("autostart failed: %v", err)
		}
	}

	// 不在 systemd 下运行时 SdNotify 返回 false, nil
	if _, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		log.Printf("sd_notify ready failed: %v", err)
	}

	var health <-chan time.Time
	if *healthEvery > 0 {
		t := time.NewTicker(*healthEvery)
		defer t.Stop()
		health = t.C
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	for running := true; running; {
		select {
		case <-quit:
			running = false
		case <-health:
			// 失败经容器的告警管理器上报，相同故障限流
			_ = c.HealthCheck()
		}
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	cancel()
	if err := c.Stop(); err != nil {
		log.Printf("shutdown error: %v", err)
		os.Exit(1)
	}
}
