package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Security: SecurityConfig{
			Mode:                  "permissive",
			ConfirmationThreshold: "high",
			SensitiveDirectories:  defaultSensitiveDirectories(),
			BusinessHours: BusinessHoursConfig{
				Enabled: false,
				Start:   "09:00",
				End:     "18:00",
			},
			RuleDirs: []string{DefaultRuleDir()},
		},
		Sandbox: SandboxConfig{
			Enabled:              true,
			Image:                "mcr.microsoft.com/powershell:latest",
			Shell:                "pwsh",
			TimeoutSeconds:       30,
			MemoryLimit:          "512m",
			CPULimit:             1.0,
			PidsLimit:            64,
			Network:              "deny",
			MaxOutputBytes:       65536,
			PoolSize:             4,
			QueueSize:            64,
			KillGraceSeconds:     5,
			AllowLocalFallback:   false,
			LocalFallbackMaxRisk: "low",
		},
		Audit: AuditConfig{
			Enabled:       true,
			DBPath:        "~/.psguard/audit.db",
			RetentionDays: 90,
			QueueSize:     256,
		},
		Server: ServerConfig{
			Enabled:          false,
			Host:             "127.0.0.1",
			Port:             8090,
			ExecutePerMinute: 30,
		},
		MCP: MCPConfig{
			Enabled: false,
		},
		Metrics: MetricsConfig{
			Enabled:  false,
			Endpoint: "/metrics",
		},
	}
}

func defaultSensitiveDirectories() []string {
	return []string{
		`C:\Windows`,
		`C:\Program Files`,
		`C:\Program Files (x86)`,
		"/etc",
		"/boot",
		"/usr/bin",
		"/usr/sbin",
		"/var/lib",
	}
}
