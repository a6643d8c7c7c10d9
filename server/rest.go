// Copyright 2020 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/google/uuid"
	"github.com/gorse-io/itemcf/base/log"
	"github.com/gorse-io/itemcf/config"
	"github.com/gorse-io/itemcf/logics"
	"github.com/gorse-io/itemcf/storage/cache"
	"github.com/juju/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/emicklei/go-restful/otelrestful"
	"go.uber.org/zap"
)

// ErrRecomputeRunning is returned by a host when a recompute is requested while another one is running.
const ErrRecomputeRunning = errors.ConstError("recompute is running")

// RestServer implements a REST-ful API server.
type RestServer struct {
	Engine *logics.Engine
	Config *config.Config
	// Recompute serves POST /api/recompute. Hosts set it to serialize requests with their own
	// schedule. If nil, Engine.Recompute is called directly.
	Recompute  func(ctx context.Context) error
	WebService *restful.WebService
	HttpServer *http.Server
}

func NewRestServer(engine *logics.Engine, cfg *config.Config) *RestServer {
	s := &RestServer{
		Engine:     engine,
		Config:     cfg,
		WebService: new(restful.WebService),
	}
	s.HttpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Master.HttpHost, cfg.Master.HttpPort),
		Handler: s.Container(),
	}
	return s
}

// Container registers the REST APIs, the OpenAPI document and the Prometheus endpoint.
func (s *RestServer) Container() *restful.Container {
	s.CreateWebService()
	container := restful.NewContainer()
	container.Add(s.WebService)
	specConfig := restfulspec.Config{
		WebServices: container.RegisteredWebServices(),
		APIPath:     "/apidocs.json",
	}
	container.Add(restfulspec.NewOpenAPIService(specConfig))
	container.Handle("/metrics", promhttp.Handler())
	return container
}

// StartHttpServer blocks until the server is shut down.
func (s *RestServer) StartHttpServer() error {
	log.Logger().Info("start http server", zap.String("url", "http://"+s.HttpServer.Addr))
	if err := s.HttpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Trace(err)
	}
	return nil
}

func (s *RestServer) Shutdown(ctx context.Context) error {
	return errors.Trace(s.HttpServer.Shutdown(ctx))
}

func LogFilter(req *restful.Request, resp *restful.Response, chain *restful.FilterChain) {
	requestId := req.HeaderParameter("X-Request-ID")
	if requestId == "" {
		requestId = uuid.New().String()
	}
	resp.Header().Set("X-Request-ID", requestId)
	start := time.Now()
	chain.ProcessFilter(req, resp)
	RestAPIRequestSecondsVec.WithLabelValues(req.SelectedRoutePath()).Observe(time.Since(start).Seconds())
	log.ResponseLogger(resp).Info(fmt.Sprintf("%s %s", req.Request.Method, req.Request.URL),
		zap.Int("status_code", resp.StatusCode()))
}

// CreateWebService creates web service.
func (s *RestServer) CreateWebService() {
	ws := s.WebService
	ws.Consumes(restful.MIME_JSON).Produces(restful.MIME_JSON)
	ws.Path("/api/")
	ws.Filter(otelrestful.OTelFilter("itemcf"))
	ws.Filter(LogFilter)

	// Get similar items
	ws.Route(ws.GET("/item/{item-id}/neighbors").To(s.getNeighbors).
		Doc("Get similar items of an item.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("item-id", "identifier of the item").DataType("integer")).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []cache.Score{}).
		Writes([]cache.Score{}))
	// Recommend items for a user
	ws.Route(ws.GET("/recommend/{user-id}").To(s.getRecommend).
		Doc("Recommend items for a user from the items the user interacted with.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"recommendation"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Param(ws.PathParameter("user-id", "identifier of the user").DataType("integer")).
		Param(ws.QueryParameter("item", "identifier of an interacted item").DataType("integer").AllowMultiple(true)).
		Param(ws.QueryParameter("n", "number of returned items").DataType("integer")).
		Returns(http.StatusOK, "OK", []cache.Score{}).
		Writes([]cache.Score{}))
	// Recompute similarities
	ws.Route(ws.POST("/recompute").To(s.recompute).
		Doc("Recompute similarities of all items.").
		AllowedMethodsWithoutContentType([]string{http.MethodPost}).
		Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Returns(http.StatusOK, "OK", Status{}).
		Returns(http.StatusConflict, "recompute is running", nil).
		Writes(Status{}))
	// Get status
	ws.Route(ws.GET("/status").To(s.getStatus).
		Doc("Get the result of the last recompute.").
		Metadata(restfulspec.KeyOpenAPITags, []string{"admin"}).
		Param(ws.HeaderParameter("X-API-Key", "secret key for RESTful API")).
		Writes(Status{}))
}

// ParseInt parses integers from the query parameter.
func ParseInt(request *restful.Request, name string, fallback int) (value int, err error) {
	valueString := request.QueryParameter(name)
	value, err = strconv.Atoi(valueString)
	if err != nil && valueString == "" {
		value = fallback
		err = nil
	}
	return
}

func (s *RestServer) parseN(request *restful.Request) (int, error) {
	n, err := ParseInt(request, "n", s.Config.Server.DefaultN)
	if err != nil {
		return 0, errors.Trace(err)
	}
	if n < 1 {
		return 0, errors.NotValidf("n = %d", n)
	}
	return n, nil
}

func (s *RestServer) getNeighbors(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	itemId, err := strconv.ParseInt(request.PathParameter("item-id"), 10, 64)
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	scores, err := s.Engine.SimilarItems(request.Request.Context(), itemId, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	Ok(response, scores)
}

func (s *RestServer) getRecommend(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	userId, err := strconv.ParseInt(request.PathParameter("user-id"), 10, 64)
	if err != nil {
		BadRequest(response, err)
		return
	}
	n, err := s.parseN(request)
	if err != nil {
		BadRequest(response, err)
		return
	}
	var items []int64
	for _, value := range request.QueryParameters("item") {
		itemId, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			BadRequest(response, err)
			return
		}
		items = append(items, itemId)
	}
	start := time.Now()
	scores, err := s.Engine.RecommendForUser(request.Request.Context(), userId, items, n)
	if err != nil {
		InternalServerError(response, err)
		return
	}
	GetRecommendSeconds.Observe(time.Since(start).Seconds())
	Ok(response, scores)
}

// Status is the result of the last recompute.
type Status struct {
	Recomputed    bool                   `json:"recomputed"`
	LastRecompute *logics.RecomputeStats `json:"last_recompute,omitempty"`
}

func (s *RestServer) status() Status {
	stats, ok := s.Engine.Stats()
	if !ok {
		return Status{}
	}
	return Status{Recomputed: true, LastRecompute: &stats}
}

func (s *RestServer) recompute(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	recompute := s.Recompute
	if recompute == nil {
		recompute = s.Engine.Recompute
	}
	if err := recompute(request.Request.Context()); err != nil {
		if errors.Is(err, ErrRecomputeRunning) {
			Conflict(response, err)
		} else {
			InternalServerError(response, err)
		}
		return
	}
	Ok(response, s.status())
}

func (s *RestServer) getStatus(request *restful.Request, response *restful.Response) {
	// Authorize
	if !s.auth(request, response) {
		return
	}
	Ok(response, s.status())
}

// BadRequest returns a bad request error.
func BadRequest(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("bad request", zap.Error(err))
	if err = response.WriteError(http.StatusBadRequest, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// InternalServerError returns a internal server error.
func InternalServerError(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	log.ResponseLogger(response).Error("internal server error", zap.Error(err))
	if err = response.WriteError(http.StatusInternalServerError, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Conflict returns a conflict error.
func Conflict(response *restful.Response, err error) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err = response.WriteError(http.StatusConflict, err); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
}

// Ok sends the content as JSON to the client.
func Ok(response *restful.Response, content interface{}) {
	response.Header().Set("Access-Control-Allow-Origin", "*")
	if err := response.WriteAsJson(content); err != nil {
		log.ResponseLogger(response).Error("failed to write json", zap.Error(err))
	}
}

func (s *RestServer) auth(request *restful.Request, response *restful.Response) bool {
	if s.Config.Server.APIKey == "" {
		return true
	}
	apikey := request.HeaderParameter("X-API-Key")
	if apikey == s.Config.Server.APIKey {
		return true
	}
	log.ResponseLogger(response).Error("unauthorized", zap.String("X-API-Key", apikey))
	if err := response.WriteError(http.StatusUnauthorized, fmt.Errorf("unauthorized")); err != nil {
		log.ResponseLogger(response).Error("failed to write error", zap.Error(err))
	}
	return false
}
