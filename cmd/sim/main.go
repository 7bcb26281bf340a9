package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"time"

	"orderup-go/config"
	"orderup-go/event"
	"orderup-go/game"
	"orderup-go/infrastructure/logger"
	"orderup-go/order"
)

// 无界面的本地模拟：用合成节拍推进回合，按概率随机交付订单，最后打印结算。
// 不启动 HTTP，也不依赖真实时间，同一个 seed 结果可复现。
func main() {
	cfgPath := flag.String("config", "configs/orderup.yaml", "配置文件路径")
	rounds := flag.Int("rounds", 1, "模拟回合数")
	seed := flag.Uint64("seed", 1, "随机种子")
	step := flag.Duration("step", 500*time.Millisecond, "每个节拍推进的游戏时间")
	completeChance := flag.Float64("completeChance", 0.02, "每个节拍交付一个订单的概率")
	verbose := flag.Bool("verbose", false, "输出全部游戏事件日志")
	flag.Parse()
	if err := validateFlags(*rounds, *step, *completeChance); err != nil {
		log.Fatalf("参数错误: %v", err)
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("加载配置失败: %v", err)
	}
	cat, err := cfg.BuildCatalog()
	if err != nil {
		log.Fatalf("构建目录失败: %v", err)
	}

	hub := event.NewHub()
	if *verbose {
		l, err := logger.New(logger.Config{Level: "info", Outputs: []string{"stdout"}, Format: "console"})
		if err != nil {
			log.Fatalf("创建日志失败: %v", err)
		}
		defer l.Close()
		l.AttachEvents(hub)
	}

	rng := rand.New(rand.NewPCG(*seed, *seed^0x9e3779b97f4a7c15))
	s, err := game.New(cfg.GameConfig(), cat, game.WithHub(hub), game.WithRand(rng))
	if err != nil {
		log.Fatalf("创建会话失败: %v", err)
	}
	defer s.Close()

	for r := 1; r <= *rounds; r++ {
		s.StartRound()
		for s.IsRoundActive() {
			s.Tick(*step)
			if rng.Float64() >= *completeChance {
				continue
			}
			active := s.ActiveOrders()
			if len(active) == 0 {
				continue
			}
			o := active[rng.IntN(len(active))]
			ct, _ := s.Scheduler().Age(o.InstanceID)
			if _, err := s.CompleteOrder(game.CompleteRequest{
				Ref:            order.ByInstance(o.InstanceID),
				Validated:      true,
				Points:         o.Definition.Points(),
				CompletionTime: &ct,
			}); err != nil {
				log.Printf("complete %d: %v", o.InstanceID, err)
			}
		}
		fmt.Printf("round %d\n%s\n", r, s.GetGameSummary())
	}
}

// validateFlags step<=0 时回合时间不前进，循环永远不会结束
func validateFlags(rounds int, step time.Duration, completeChance float64) error {
	if rounds < 1 {
		return errors.New("-rounds must be >= 1")
	}
	if step <= 0 {
		return errors.New("-step must be > 0")
	}
	if completeChance < 0 || completeChance > 1 {
		return errors.New("-completeChance must be within [0, 1]")
	}
	return nil
}
