// Command uploadproxy runs the server-side upload route that browser
// clients use instead of talking to the walrus publisher directly.
package main

import (
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/sealfeed/sealfeed/internal/proxy"
)

type proxyConfig struct {
	Listen         string   `yaml:"listen"`
	PublisherURL   string   `yaml:"publisher_url"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

func loadProxyConfig(path string) (proxyConfig, error) {
	conf := proxyConfig{
		Listen:       ":8080",
		PublisherURL: "https://publisher.walrus-testnet.walrus.space",
	}
	if path == "" {
		return conf, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return conf, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &conf); err != nil {
		return conf, fmt.Errorf("parse config %s: %w", path, err)
	}
	return conf, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config")
	flag.Parse()

	log := logrus.New()

	conf, err := loadProxyConfig(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	handler, err := proxy.NewHandler(proxy.Config{
		PublisherURL:   conf.PublisherURL,
		AllowedOrigins: conf.AllowedOrigins,
		Logger:         log,
	})
	if err != nil {
		log.Fatal(err)
	}

	srv := &http.Server{
		Addr:              conf.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.WithFields(logrus.Fields{
		"listen":    conf.Listen,
		"publisher": conf.PublisherURL,
	}).Info("upload proxy listening")

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
}
