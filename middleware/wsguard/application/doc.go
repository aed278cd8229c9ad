// Package application contém os casos de uso da admissão de conexões e da
// telemetria de conexões/mensagens.
//
// Ele depende do pacote domain (e de zap para reportar falhas de telemetria)
// e não conhece net/http nem WebSocket.
// Ex.: AdmissionService.Admit(ctx, key) retorna uma Admission (decisão + release).
package application
