package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	adhoc "PartInspect/Adhoc"
	"PartInspect/detector"
	"PartInspect/engine"
	iface "PartInspect/interface"
	"PartInspect/logger"
	"PartInspect/monitor"
	"PartInspect/template"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"
)

type configStruct struct {
	HTTPPort          int    `yaml:"HTTPPort"`
	AdhocPort         int    `yaml:"AdhocPort"`
	WorkersNum        int    `yaml:"workersNum"`
	TemplateDir       string `yaml:"templateDir"`
	StandardsFile     string `yaml:"standardsFile"`
	DetectorEndpoint  string `yaml:"detectorEndpoint"`
	DetectorTimeoutMs int    `yaml:"detectorTimeoutMs"`
	InputSize         int    `yaml:"inputSize"`
	StationClass      string `yaml:"stationClass"`
	UseRegServer      bool   `yaml:"UseRegServer"`
	RegServerPort     int    `yaml:"RegServerPort"`
	RegServerHost     string `yaml:"RegServerHost"`

	MatchStrategy     string  `yaml:"matchStrategy"`
	MaxMatchDistance  float64 `yaml:"maxMatchDistance"`
	TreatExtraAsError bool    `yaml:"treatExtraAsError"`
	ToleranceX        float64 `yaml:"toleranceX"`
	ToleranceY        float64 `yaml:"toleranceY"`
	ConfThreshold     float64 `yaml:"confThreshold"`
	NMSThreshold      float64 `yaml:"nmsThreshold"`
	TypeMismatchRatio float64 `yaml:"typeMismatchRatio"`
}

// JobPackage carries one match computation to the worker pool. The
// computation itself is pure, so any worker may take any job.
type JobPackage struct {
	tpl    *iface.Template
	dets   []iface.DetectedObject
	cfg    engine.MatchConfig
	Result chan jobResult
}

type jobResult struct {
	Res iface.InspectionResult
	Err error
}

var JobQueue chan JobPackage

func StartWorker(workerNum int) {
	for i := 0; i < workerNum; i++ {
		go runWorker(i)
	}
}

func runWorker(workerID int) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log().Error(fmt.Sprintf("Worker %d panic: %v. Restarting in 1s...", workerID, r))
			time.Sleep(1 * time.Second)
			go runWorker(workerID)
		}
	}()
	logger.Log().Info(fmt.Sprintf("---Worker %d created", workerID))
	for job := range JobQueue {
		res, err := engine.Match(job.tpl, job.dets, job.cfg)
		job.Result <- jobResult{Res: res, Err: err}
	}
}

type instance struct {
	id          string
	templateID  string
	lastActive  time.Time
	conn        *websocket.Conn
	closeOnce   sync.Once
	cancelTimer chan struct{}
	cancelOnce  sync.Once
}

var (
	sessionMu sync.RWMutex
	sessions  = map[string]*instance{}
	upgrader  = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
	idleTimeout = 30 * time.Second
)

func allocSession(templateID string) string {
	sessionID := uuid.New().String()
	inst := &instance{
		id:          sessionID,
		templateID:  templateID,
		lastActive:  time.Now(),
		cancelTimer: make(chan struct{}),
	}
	sessionMu.Lock()
	sessions[sessionID] = inst
	sessionMu.Unlock()
	return sessionID
}

func releaseSession(sessionID string) bool {
	sessionMu.Lock()
	inst, ok := sessions[sessionID]
	if ok {
		delete(sessions, sessionID)
	}
	sessionMu.Unlock()
	if !ok {
		return false
	}
	inst.closeOnce.Do(func() {
		if inst.conn != nil {
			_ = inst.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session released"))
			_ = inst.conn.Close()
		}
	})
	inst.cancelOnce.Do(func() {
		close(inst.cancelTimer)
	})
	return true
}

func startIdleMonitor(inst *instance) {
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-inst.cancelTimer:
				return
			case <-ticker.C:
				if time.Since(inst.lastActive) > idleTimeout {
					_ = releaseSession(inst.id)
					logger.Log().Info("session idle timeout", zap.String("session", inst.id))
					return
				}
			}
		}
	}()
}

// inspectRequest is what clients post. Exactly one input form is
// used, checked in this order: pre-decoded detections, a raw detector
// tensor, or a base64 image routed through the external detector.
type inspectRequest struct {
	Detections []iface.DetectedObject `json:"detections,omitempty"`
	Raw        *iface.RawOutput       `json:"raw,omitempty"`
	Image      string                 `json:"image,omitempty"`
	Names      []string               `json:"names,omitempty"`
}

type station struct {
	cache     *template.Cache
	store     *template.Store
	client    *detector.Client
	standards iface.QualityStandards
	matchCfg  engine.MatchConfig
	conf      configStruct
}

// resolveDetections turns whichever input form the request carried
// into the final detection list.
func (st *station) resolveDetections(ctx context.Context, req *inspectRequest) ([]iface.DetectedObject, error) {
	if req.Detections != nil {
		return req.Detections, nil
	}
	if req.Raw != nil {
		boxes, err := engine.DecodeBoxes(*req.Raw, st.conf.ConfThreshold)
		if err != nil {
			return nil, err
		}
		kept := engine.SuppressBoxes(boxes, st.conf.NMSThreshold)
		names := req.Names
		if names == nil {
			names = req.Raw.Names
		}
		return engine.ToDetections(kept, names), nil
	}
	if req.Image != "" {
		mat, err := detector.Base64ToMat(req.Image)
		if err != nil {
			return nil, fmt.Errorf("invalid image: %w", err)
		}
		defer mat.Close()
		return st.detect(ctx, mat, req.Names)
	}
	return nil, fmt.Errorf("request carries no detections, raw output, or image")
}

func (st *station) detect(ctx context.Context, mat gocv.Mat, names []string) ([]iface.DetectedObject, error) {
	boxed, lb, err := detector.Letterbox(mat, st.conf.InputSize)
	if err != nil {
		return nil, err
	}
	defer boxed.Close()
	jpeg, err := detector.EncodeJPEG(boxed)
	if err != nil {
		return nil, err
	}
	monitor.DetectorCalls.Inc()
	raw, err := st.client.Detect(ctx, jpeg, lb)
	if err != nil {
		return nil, err
	}
	boxes, err := engine.DecodeBoxes(raw, st.conf.ConfThreshold)
	if err != nil {
		return nil, err
	}
	kept := engine.SuppressBoxes(boxes, st.conf.NMSThreshold)
	if names == nil {
		names = raw.Names
	}
	return engine.ToDetections(kept, names), nil
}

// inspect runs the full pipeline for one request and folds the
// quality-standard verdict into the result.
func (st *station) inspect(ctx context.Context, templateID string, req *inspectRequest) (iface.InspectionResult, int) {
	tpl, err := st.cache.Get(templateID)
	if err != nil {
		return iface.InspectionResult{TemplateID: templateID, Passed: false, Message: err.Error()}, http.StatusNotFound
	}

	dets, err := st.resolveDetections(ctx, req)
	if err != nil {
		return iface.InspectionResult{TemplateID: templateID, Passed: false, Message: err.Error()}, http.StatusBadRequest
	}

	resultChan := make(chan jobResult, 1)
	JobQueue <- JobPackage{tpl: tpl, dets: dets, cfg: st.matchCfg, Result: resultChan}
	jr := <-resultChan

	monitor.InspectionsTotal.Inc()
	if jr.Err != nil {
		monitor.InspectionsFailed.Inc()
		return jr.Res, http.StatusBadRequest
	}

	result := jr.Res
	counts := engine.CountDefects(result)
	if !engine.EvaluatePart(tpl.PartType, counts, st.standards) {
		result.Passed = false
		result.Message = result.Message + "; quality standards not met"
	}
	if result.Passed {
		monitor.InspectionsPassed.Inc()
	} else {
		monitor.InspectionsFailed.Inc()
	}
	return result, http.StatusOK
}

func (st *station) routes(r *gin.Engine) {
	r.GET("/api/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	r.POST("/api/inspect/:templateID", func(c *gin.Context) {
		var req inspectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, code := st.inspect(c.Request.Context(), c.Param("templateID"), &req)
		c.JSON(code, gin.H{"data": result})
	})

	r.GET("/api/templates/:id", func(c *gin.Context) {
		tpl, err := st.cache.Get(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": tpl})
	})

	r.POST("/api/templates/upload", func(c *gin.Context) {
		file, err := c.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed: " + err.Error()})
			return
		}
		if !strings.HasSuffix(file.Filename, ".yaml") {
			c.JSON(http.StatusBadRequest, gin.H{"error": "template files must be .yaml"})
			return
		}
		id := strings.TrimSuffix(file.Filename, ".yaml")
		if err := c.SaveUploadedFile(file, st.store.Dir+"/"+file.Filename); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to save file: " + err.Error()})
			return
		}
		// Explicit invalidation: the next Get reloads the new file.
		st.cache.Evict(id)
		if _, err := st.cache.Get(id); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "uploaded template rejected: " + err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": id})
	})

	// Learn a template from a golden sample's detections.
	r.POST("/api/templates/:id/learn", func(c *gin.Context) {
		var req inspectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		dets, err := st.resolveDetections(c.Request.Context(), &req)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tpl, err := template.NewBuilder(c.Param("id")).
			GlobalTolerance(st.conf.ToleranceX, st.conf.ToleranceY).
			FromDetections(dets, true).
			Build()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := st.store.Save(tpl); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		st.cache.Put(tpl)
		c.JSON(http.StatusOK, gin.H{"data": tpl})
	})

	r.POST("/api/sessions/alloc/:templateID", func(c *gin.Context) {
		templateID := c.Param("templateID")
		if _, err := st.cache.Get(templateID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		sessionID := allocSession(templateID)
		c.JSON(http.StatusOK, gin.H{
			"sessionID": sessionID,
			"wsURL":     fmt.Sprintf("ws://%s/ws/%s", c.Request.Host, sessionID),
			"timeoutMs": idleTimeout.Milliseconds(),
		})
	})

	r.POST("/api/sessions/:sessionID/release", func(c *gin.Context) {
		if !releaseSession(c.Param("sessionID")) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": "Session released"})
	})

	r.GET("/ws/:sessionID", func(c *gin.Context) {
		sessionID := c.Param("sessionID")
		sessionMu.RLock()
		inst, exists := sessions[sessionID]
		sessionMu.RUnlock()
		if !exists {
			c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		inst.conn = conn
		conn.SetReadLimit(20 * 1024 * 1024)

		startIdleMonitor(inst)
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				releaseSession(sessionID)
				logger.Log().Info("connection closed", zap.String("session", sessionID), zap.Error(err))
				return
			}
			inst.lastActive = time.Now()
			if mt != websocket.TextMessage {
				_ = conn.WriteMessage(websocket.TextMessage, []byte("unsupported message type"))
				continue
			}
			var req inspectRequest
			if err := json.Unmarshal(msg, &req); err != nil {
				// Bare payloads are treated as a base64 image.
				req = inspectRequest{Image: string(msg)}
			}
			result, _ := st.inspect(c.Request.Context(), inst.templateID, &req)
			payload, _ := json.Marshal(result)
			_ = conn.WriteMessage(websocket.TextMessage, payload)
		}
	})
}

func GetOutboundIP() (string, error) {
	// No traffic is sent; dialing UDP just resolves the local
	// outbound address from the routing table.
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()
	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

func main() {
	ip, err := GetOutboundIP()
	if err != nil {
		fmt.Println("Failed to get outbound IP:", err)
		return
	}
	fmt.Println("Outbound IP:", ip)
	var wg sync.WaitGroup
	if err := logger.InitProduction(); err != nil {
		return
	}
	defer logger.Sync()
	fmt.Println(strings.Repeat("#", 64))
	CPUNum := runtime.NumCPU()
	runtime.GOMAXPROCS(CPUNum)
	fmt.Printf("CPU Cores: %d\n", CPUNum)
	configData, err := os.ReadFile("config.yaml")
	if err != nil {
		fmt.Println("Failed to read config file:", err)
		return
	}
	conf := configStruct{}
	if err := yaml.Unmarshal(configData, &conf); err != nil {
		fmt.Println("Failed to parse config file:", err)
		return
	}
	fmt.Println(" HTTP  Port:", conf.HTTPPort)
	fmt.Println(" Adhoc Port:", conf.AdhocPort)
	fmt.Println("Configured Workers Num:", conf.WorkersNum)
	fmt.Println("Match Strategy:", conf.MatchStrategy)
	fmt.Println(strings.Repeat("#", 64))
	if conf.WorkersNum <= 0 {
		conf.WorkersNum = 1
		fmt.Println("Invalid workersNum in config, defaulting to 1")
	}
	if conf.InputSize <= 0 {
		conf.InputSize = 640
	}
	if conf.DetectorTimeoutMs <= 0 {
		conf.DetectorTimeoutMs = 5000
	}

	// Strategy and evaluator configuration fail closed here, before
	// any inspection can run against them.
	strategy, err := engine.ParseStrategy(conf.MatchStrategy)
	if err != nil {
		fmt.Println("Invalid configuration:", err)
		return
	}
	matchCfg := engine.MatchConfig{
		Strategy:          strategy,
		MaxMatchDistance:  conf.MaxMatchDistance,
		TreatExtraAsError: conf.TreatExtraAsError,
		ToleranceX:        conf.ToleranceX,
		ToleranceY:        conf.ToleranceY,
		TypeMismatchRatio: conf.TypeMismatchRatio,
	}
	if err := matchCfg.Validate(); err != nil {
		fmt.Println("Invalid configuration:", err)
		return
	}

	store, err := template.NewStore(conf.TemplateDir)
	if err != nil {
		fmt.Println("Failed to open template store:", err)
		return
	}
	standards := iface.QualityStandards{}
	if conf.StandardsFile != "" {
		standards, err = engine.LoadStandards(conf.StandardsFile)
		if err != nil {
			fmt.Println("Failed to load quality standards:", err)
			return
		}
	}

	st := &station{
		cache:     template.NewCache(store.Load),
		store:     store,
		client:    detector.NewClient(conf.DetectorEndpoint, time.Duration(conf.DetectorTimeoutMs)*time.Millisecond),
		standards: standards,
		matchCfg:  matchCfg,
		conf:      conf,
	}

	var stationClass int
	switch conf.StationClass {
	case "Inline":
		stationClass = adhoc.StationClassInline
	case "Offline":
		stationClass = adhoc.StationClassOffline
	case "Audit":
		stationClass = adhoc.StationClassAudit
	default:
		fmt.Println("Invalid stationClass in config, defaulting to Inline")
		stationClass = adhoc.StationClassInline
	}
	adhoc.RegServerCfg = adhoc.RegServerConfig{}
	adhoc.RegServerCfg.SetAddress(conf.RegServerHost, conf.RegServerPort)

	JobQueue = make(chan JobPackage, conf.WorkersNum)
	StartWorker(conf.WorkersNum)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	wg.Add(1)
	if conf.UseRegServer {
		go adhoc.SendAliveMessage(ip, conf.HTTPPort, stationClass, ctx, &wg)
	} else {
		fmt.Println("UseRegServer is set to false, skipping registration")
		wg.Done()
	}
	go monitor.StartMon(conf.AdhocPort, ctx)

	r := gin.Default()
	st.routes(r)
	if err := r.Run(fmt.Sprintf(":%d", conf.HTTPPort)); err != nil {
		logger.Log().Error("HTTP server exited", zap.Error(err))
	}
	cancel()
	wg.Wait()
	fmt.Println("Safely exited")
}
