package config

import (
	"fmt"
)

// ConvertToStoreConfig converts parsed configuration data to a StoreConfig.
// The data should have been validated against the schema first.
//
// The configuration is expected to have this structure:
//
//	{
//	  "schemaVersion": "1.0.0",
//	  "store": {
//	    "name": "...",
//	    "apiUrl": "...",
//	    "path": "/items",
//	    "endpointMode": "append",
//	    "watch": {...},
//	    "notify": {...}
//	  }
//	}
func ConvertToStoreConfig(data map[string]any) (*StoreConfig, error) {
	if data == nil {
		return nil, fmt.Errorf("configuration data is nil")
	}

	storeData, ok := data["store"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("missing or invalid 'store' section")
	}

	cfg := &StoreConfig{
		Path:         DefaultItemsPath,
		EndpointMode: EndpointAppend,
	}

	if cfg.Name, ok = storeData["name"].(string); !ok || cfg.Name == "" {
		return nil, fmt.Errorf("missing required field 'store.name'")
	}
	if cfg.APIURL, ok = storeData["apiUrl"].(string); !ok {
		return nil, fmt.Errorf("missing required field 'store.apiUrl'")
	}

	cfg.Description, _ = storeData["description"].(string)
	cfg.APIURLEnv, _ = storeData["apiUrlEnv"].(string)
	cfg.UserAgent, _ = storeData["userAgent"].(string)

	if p, okPath := storeData["path"].(string); okPath {
		cfg.Path = p
	}
	if mode, okMode := storeData["endpointMode"].(string); okMode {
		switch EndpointMode(mode) {
		case EndpointAppend, EndpointVerbatim:
			cfg.EndpointMode = EndpointMode(mode)
		default:
			return nil, fmt.Errorf("invalid 'store.endpointMode' %q", mode)
		}
	}
	if timeout, okTimeout := toInt(storeData["timeoutMs"]); okTimeout {
		cfg.TimeoutMs = timeout
	}

	if watchData, okWatch := storeData["watch"].(map[string]any); okWatch {
		cfg.Watch = convertWatch(watchData)
	}

	if notifyData, okNotify := storeData["notify"].(map[string]any); okNotify {
		notify, err := convertNotify(notifyData)
		if err != nil {
			return nil, fmt.Errorf("invalid notify config: %w", err)
		}
		cfg.Notify = notify
	}

	return cfg, nil
}

func convertWatch(data map[string]any) WatchConfig {
	var w WatchConfig
	if interval, ok := toInt(data["intervalMs"]); ok {
		w.IntervalMs = interval
	}
	if maxFetches, ok := toInt(data["maxFetches"]); ok {
		w.MaxFetches = maxFetches
	}
	w.Until, _ = data["until"].(string)
	return w
}

func convertNotify(data map[string]any) (NotifyConfig, error) {
	var n NotifyConfig
	n.Log, _ = data["log"].(bool)

	redisData, ok := data["redis"].(map[string]any)
	if !ok {
		return n, nil
	}

	redisCfg := &RedisNotifyConfig{Channel: DefaultRedisChannel}
	if redisCfg.Addr, ok = redisData["addr"].(string); !ok || redisCfg.Addr == "" {
		return n, fmt.Errorf("missing required field 'redis.addr'")
	}
	redisCfg.Password, _ = redisData["password"].(string)
	if db, okDB := toInt(redisData["db"]); okDB {
		redisCfg.DB = db
	}
	if channel, okChannel := redisData["channel"].(string); okChannel && channel != "" {
		redisCfg.Channel = channel
	}
	n.Redis = redisCfg
	return n, nil
}

// toInt accepts the numeric types produced by encoding/json and yaml.v3.
func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}
