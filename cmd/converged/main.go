package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-kit/kit/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"k8s.io/client-go/discovery"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/convergeproj/converge/pkg/apps"
	"github.com/convergeproj/converge/pkg/cluster"
	"github.com/convergeproj/converge/pkg/cluster/kubernetes"
	"github.com/convergeproj/converge/pkg/config"
	"github.com/convergeproj/converge/pkg/daemon"
	"github.com/convergeproj/converge/pkg/event"
	"github.com/convergeproj/converge/pkg/git"
	"github.com/convergeproj/converge/pkg/health"
	daemonhttp "github.com/convergeproj/converge/pkg/http/daemon"
	"github.com/convergeproj/converge/pkg/manifests"
	"github.com/convergeproj/converge/pkg/sync"
)

var version = "unversioned"

const shutdownGracePeriod = 5 * time.Second

func main() {
	// Flag domain.
	fs := pflag.NewFlagSet("default", pflag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "DESCRIPTION\n")
		fmt.Fprintf(os.Stderr, "  converged reconciles declared applications against a cluster.\n")
		fmt.Fprintf(os.Stderr, "\n")
		fmt.Fprintf(os.Stderr, "FLAGS\n")
		fs.PrintDefaults()
	}

	bail := func(err error) {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// These flags have no config file equivalent.
	var (
		versionFlag = fs.Bool("version", false, "get version number")
		kubeconfig  = fs.String("kubeconfig", "", "path to a kubeconfig; empty means in-cluster config")
		configFile  = fs.String("config-file", "", "path to a config file; when empty, "+filepath.Join(config.ConfigPath, config.ConfigName)+" is used if present")
	)
	defineConfigFlags(fs, bail)
	fs.Parse(os.Args)

	if *versionFlag {
		fmt.Println(version)
		os.Exit(0)
	}

	// Configuration: flag values are the defaults, a config file (if
	// any) takes precedence for the fields it mentions, and flags
	// given explicitly win outright.
	var conf config.Config
	{
		if *configFile != "" {
			viper.SetConfigFile(*configFile)
		} else {
			viper.SetConfigName(strings.TrimSuffix(config.ConfigName, filepath.Ext(config.ConfigName)))
			viper.SetConfigType(config.ConfigType)
			viper.AddConfigPath(config.ConfigPath)
		}
		switch err := viper.ReadInConfig(); err.(type) {
		case nil:
			// the file is interpreted below
		case viper.ConfigFileNotFoundError:
			if *configFile != "" {
				bail(err)
			}
		default:
			bail(err)
		}
		if err := viper.Unmarshal(&conf); err != nil {
			bail(err)
		}
		if viper.ConfigFileUsed() != "" {
			if err := conf.IsValid(); err != nil {
				bail(err)
			}
		}
	}

	// Logger component.
	var logger log.Logger
	{
		switch conf.LogFormat {
		case "json":
			logger = log.NewJSONLogger(os.Stderr)
		default:
			logger = log.NewLogfmtLogger(os.Stderr)
		}
		logger = log.With(logger, "ts", log.DefaultTimestampUTC)
		logger = log.With(logger, "caller", log.DefaultCaller)
	}
	logger.Log("version", version)
	if f := viper.ConfigFileUsed(); f != "" {
		logger.Log("msg", "using config file", "file", f)
	}

	// Cluster component.
	var clus *kubernetes.Cluster
	var clusterVersion string
	{
		var restConfig *rest.Config
		var err error
		if *kubeconfig != "" {
			restConfig, err = clientcmd.BuildConfigFromFlags("", *kubeconfig)
		} else {
			restConfig, err = rest.InClusterConfig()
		}
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		client, err := dynamic.NewForConfig(restConfig)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		disco, err := discovery.NewDiscoveryClientForConfig(restConfig)
		if err != nil {
			logger.Log("err", err)
			os.Exit(1)
		}
		if sv, err := disco.ServerVersion(); err == nil {
			clusterVersion = "kubernetes-" + sv.GitVersion
		}
		clus = kubernetes.NewCluster(client, disco, log.With(logger, "component", "cluster"))
		if len(conf.K8sAllowNamespace) > 0 {
			clus.AllowedNamespaces = cluster.ExcludeIncludeGlob{Include: conf.K8sAllowNamespace}
			logger.Log("info", "restricting operations to namespaces", "namespaces", strings.Join(conf.K8sAllowNamespace, ","))
		}
	}

	// Phone home to find out about newer releases.
	checker := checkForUpdates(clusterVersion, log.With(logger, "component", "checkpoint"))
	defer checker.Stop()

	// Application declarations.
	declared, err := apps.LoadFromDirectory(conf.AppsDir)
	if err != nil {
		logger.Log("err", err)
		os.Exit(1)
	}
	if len(declared) == 0 {
		logger.Log("warning", "no applications declared", "dir", conf.AppsDir)
	}

	// Git mirrors and the fetcher over them.
	mirrors := git.NewMirrors()
	defer mirrors.StopAllAndWait()
	fetcher := manifests.NewGitFetcher(mirrors, conf.GitPollInterval, conf.GitTimeout, log.With(logger, "component", "fetcher"))

	events := event.NewLog(conf.EventLogSize)
	syncer := sync.NewSyncer(clus, log.With(logger, "component", "sync"))
	evaluator := health.NewEvaluator(clus)

	d := daemon.New(version, clus, fetcher, syncer, evaluator, events, logger, daemon.LoopVars{
		CycleInterval: conf.CycleInterval,
		GitTimeout:    conf.GitTimeout,
		SyncTimeout:   conf.SyncTimeout,
		HealthTimeout: conf.HealthTimeout,
	})
	d.Repos = fetcher.Changes()
	for _, app := range declared {
		logger.Log("info", "registered application", "application", app.Name, "url", git.Remote{URL: app.Source.RepoURL}.SafeURL(), "ref", app.Ref())
		d.AddApplication(app)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loopsDone := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(loopsDone)
	}()

	// HTTP component: the API, plus prometheus metrics either on the
	// same listener or on their own.
	mux := http.NewServeMux()
	if conf.ListenMetrics == "" {
		mux.Handle("/metrics", promhttp.Handler())
	}
	handler := daemonhttp.NewHandler(d, daemonhttp.NewRouter())
	mux.Handle("/api/converge/", http.StripPrefix("/api/converge", handler))
	srv := &http.Server{Addr: conf.Listen, Handler: mux}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		logger.Log("addr", conf.Listen)
		errc <- srv.ListenAndServe()
	}()
	if conf.ListenMetrics != "" {
		go func() {
			logger.Log("metrics-addr", conf.ListenMetrics)
			metricsMux := http.NewServeMux()
			metricsMux.Handle("/metrics", promhttp.Handler())
			errc <- http.ListenAndServe(conf.ListenMetrics, metricsMux)
		}()
	}

	logger.Log("exiting", <-errc)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	srv.Shutdown(shutdownCtx)
	shutdownCancel()
	cancel()
	<-loopsDone
}
