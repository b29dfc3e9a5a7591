package Adhoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"PartInspect/logger"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const (
	StationClassInline  = 0x3001
	StationClassOffline = 0x3002
	StationClassAudit   = 0x3003
	TimeOutSeconds      = 5
)

// RegisterRequest announces this inspection station to the central
// registry so upstream schedulers know it is alive.
type RegisterRequest struct {
	Id           string `json:"id"`
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	StationClass int    `json:"stationClass"`
	TimeStamp    int64  `json:"timestamp"`
}

type RegisterResponse struct {
	Id      string `json:"id"`
	Success bool   `json:"success"`
}

type RegServerConfig struct {
	Port int
	Addr string
}

func (reg *RegServerConfig) SetAddress(addr string, port int) {
	reg.Addr = addr
	reg.Port = port
}

var RegServerCfg RegServerConfig

// SendAliveMessage posts a heartbeat to the registry server every
// TimeOutSeconds until the context is cancelled. Failures are logged
// and retried on the next tick; the station keeps inspecting either
// way.
func SendAliveMessage(stationIP string, stationPort int, stationClass int, ctx context.Context, wg *sync.WaitGroup) {
	addr := fmt.Sprintf("%s:%d", RegServerCfg.Addr, RegServerCfg.Port)
	defer wg.Done()
	ticker := time.NewTicker(TimeOutSeconds * time.Second)
	defer ticker.Stop()
	client := resty.New().SetTimeout(TimeOutSeconds * time.Second)
	id := uuid.NewString()
	doRequest := func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Log().Error(fmt.Sprintf("SendAliveMessage panic recovered: %v", r))
			}
		}()
		var respBody RegisterResponse
		url := fmt.Sprintf("http://%s/api/register", addr)
		reqBody := RegisterRequest{
			Id:           id,
			IP:           stationIP,
			Port:         stationPort,
			StationClass: stationClass,
			TimeStamp:    time.Now().Unix(),
		}
		resp, err := client.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(reqBody).
			SetResult(&respBody).
			Post(url)
		if err != nil {
			logger.Log().Error(fmt.Sprintf("registry request error: %v", err))
			return
		}
		if resp.IsError() {
			logger.Log().Error(fmt.Sprintf("registry returned error: %s, body: %s", resp.Status(), resp.String()))
		}
	}
	doRequest()
	for {
		select {
		case <-ctx.Done():
			logger.Log().Info("SendAliveMessage context cancelled, exiting goroutine.")
			return
		case <-ticker.C:
			doRequest()
		}
	}
}
