// Package wsguard fornece o adapter HTTP/WebSocket (gorilla/websocket) para
// admissão de conexões e telemetria de conexões/mensagens.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (admissão, collector, limite de mensagens) sem net/http
//   - infra: implementações concretas (Redis, cache em memória, token bucket, Prometheus)
//   - wsguard (este pacote): extração de chave, upgrade, close codes e conexão instrumentada
//
// Fluxo de uma conexão:
//
//  1. Extrai a chave do cliente (header/XFF/X-Real-IP/RemoteAddr)
//  2. Verifica o limite global de conexões da instância
//  3. Chama a camada application para obter a admissão
//  4. Se rejeitado, completa o upgrade e fecha com 1008 (ou 1013 para limite global)
//  5. Se admitido, abre a sessão no collector e chama a app com um *Conn
//  6. Ao sair da app, por qualquer caminho, fecha a sessão e libera a vaga
//
// Variáveis de ambiente/flags do binário (cmd/wsgateway) controlam os limites,
// como max_connections_per_ip e max_reconnect_attempts_per_hour.
package wsguard
